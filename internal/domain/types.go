package domain

// Category is one of the eight fixed knowledge areas.
type Category string

const (
	CategoryDiseases     Category = "Diseases"
	CategoryPests        Category = "Pests"
	CategoryWeeds        Category = "Weeds"
	CategoryLatexQuality Category = "Latex Quality"
	CategoryCultivation  Category = "Cultivation"
	CategoryClimate      Category = "Climate"
	CategoryEconomics    Category = "Economics"
	CategoryProcessing   Category = "Processing"
)

var categories = []Category{
	CategoryDiseases,
	CategoryPests,
	CategoryWeeds,
	CategoryLatexQuality,
	CategoryCultivation,
	CategoryClimate,
	CategoryEconomics,
	CategoryProcessing,
}

var categoryIcons = map[Category]string{
	CategoryDiseases:     "🦠",
	CategoryPests:        "🐛",
	CategoryWeeds:        "🌿",
	CategoryLatexQuality: "🧪",
	CategoryCultivation:  "🌱",
	CategoryClimate:      "🌤️",
	CategoryEconomics:    "💰",
	CategoryProcessing:   "🏭",
}

// Categories returns the fixed category list in canonical order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// CategoryNames returns the canonical category names as plain strings.
func CategoryNames() []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = string(c)
	}
	return out
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	_, ok := categoryIcons[c]
	return ok
}

// Icon returns the display glyph for the category.
func (c Category) Icon() string {
	if icon, ok := categoryIcons[c]; ok {
		return icon
	}
	return "📘"
}

// KnowledgeEntry is one curated question/answer pair. Entries are immutable after load.
type KnowledgeEntry struct {
	ID       string   `json:"id" yaml:"id" validate:"required"`
	Category Category `json:"category" yaml:"category" validate:"required,category"`
	Question string   `json:"question" yaml:"question" validate:"required"`
	Answer   string   `json:"answer" yaml:"answer" validate:"required"`
	Keywords []string `json:"keywords" yaml:"keywords" validate:"required,dive,required"`
}

// QueryResult is a ranked match with a score in [0,1].
type QueryResult struct {
	Entry KnowledgeEntry
	Score float64
}

// Tier is the confidence level derived from the top retrieval score.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Source is a reference shown alongside an answer.
type Source struct {
	Category string  `json:"category"`
	Question string  `json:"question"`
	Score    float64 `json:"score"`
}

// ChatResponse is the structured answer returned for every query.
type ChatResponse struct {
	Reply           string   `json:"reply"`
	Confidence      float64  `json:"confidence"`
	ConfidenceLevel Tier     `json:"confidence_level"`
	Category        string   `json:"category"`
	Sources         []Source `json:"sources"`
	SuggestedTopics []string `json:"suggested_topics"`
}

// Variant names the active vector representation.
type Variant string

const (
	VariantDense  Variant = "dense"
	VariantSparse Variant = "sparse"
)

// HealthStats summarizes the engine state.
type HealthStats struct {
	EntryCount   int      `json:"entryCount"`
	IndexVariant Variant  `json:"indexVariant"`
	Ready        bool     `json:"ready"`
	Embedder     string   `json:"embedder"`
	Categories   []string `json:"categories"`
}
