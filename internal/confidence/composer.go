package confidence

import (
	"fmt"
	"strings"

	"rubberbot/internal/domain"
	"rubberbot/internal/summarizer"
)

const (
	CategoryMultiple    = "Multiple Topics"
	CategoryOutOfDomain = "Out of Domain"
	CategoryWelcome     = "Welcome"
)

// welcomeTopics are starter questions offered before the first query.
var welcomeTopics = []string{
	"What is Corynespora leaf fall disease?",
	"What is DRC and how to measure it?",
	"How to make ribbed smoked sheets?",
	"What are the recommended rubber clones for Sri Lanka?",
}

// Composer builds ChatResponses. It is stateless; the caller supplies the
// session's recently shown entry ids.
type Composer struct {
	summarizer *summarizer.Frequency
}

// NewComposer returns a composer that excerpts secondary answers with s.
// A nil s uses the default frequency summarizer.
func NewComposer(s *summarizer.Frequency) *Composer {
	if s == nil {
		s = summarizer.NewFrequency()
	}
	return &Composer{summarizer: s}
}

// Compose builds the response for query from results, which must be ranked
// best first. recent lists entry ids the session was shown lately.
func (c *Composer) Compose(query string, results []domain.QueryResult, recent []string) domain.ChatResponse {
	if len(results) == 0 {
		return c.OutOfDomain(0)
	}
	top := results[0]
	switch Classify(top.Score) {
	case domain.TierHigh:
		return domain.ChatResponse{
			Reply:           top.Entry.Answer,
			Confidence:      top.Score,
			ConfidenceLevel: domain.TierHigh,
			Category:        string(top.Entry.Category),
			Sources:         sources(results),
			SuggestedTopics: suggest(results, recent),
		}
	case domain.TierMedium:
		return domain.ChatResponse{
			Reply:           c.partialReply(query, results),
			Confidence:      top.Score,
			ConfidenceLevel: domain.TierMedium,
			Category:        CategoryMultiple,
			Sources:         sources(results),
			SuggestedTopics: suggest(results, recent),
		}
	default:
		return c.OutOfDomain(top.Score)
	}
}

// OutOfDomain is the low-tier response. It never cites sources and suggests
// the category names instead of specific questions.
func (c *Composer) OutOfDomain(score float64) domain.ChatResponse {
	var b strings.Builder
	b.WriteString("I'm specialized in rubber cultivation and processing topics. ")
	b.WriteString("I couldn't find a strong match for your question.\n\n")
	b.WriteString("Here are some topics I can help with:\n")
	for _, cat := range domain.Categories() {
		fmt.Fprintf(&b, "• %s %s\n", cat.Icon(), cat)
	}
	b.WriteString("\nTry asking me about rubber diseases, latex quality, tapping, processing, or pests!")
	return domain.ChatResponse{
		Reply:           b.String(),
		Confidence:      clamp(score),
		ConfidenceLevel: domain.TierLow,
		Category:        CategoryOutOfDomain,
		Sources:         []domain.Source{},
		SuggestedTopics: domain.CategoryNames(),
	}
}

// Welcome is the greeting shown before the first question.
func (c *Composer) Welcome(entryCount int) domain.ChatResponse {
	cats := domain.Categories()
	var b strings.Builder
	b.WriteString("Hello! I'm **RubberBot** 🌿, your rubber cultivation expert assistant.\n\n")
	fmt.Fprintf(&b, "I have knowledge on **%d topics** across %d categories:\n", entryCount, len(cats))
	for _, cat := range cats {
		fmt.Fprintf(&b, "• %s %s\n", cat.Icon(), cat)
	}
	b.WriteString("\nAsk me anything about rubber diseases, latex quality, tapping, processing, pest control, and more!")
	return domain.ChatResponse{
		Reply:           b.String(),
		Confidence:      1,
		ConfidenceLevel: domain.TierHigh,
		Category:        CategoryWelcome,
		Sources:         []domain.Source{},
		SuggestedTopics: append([]string(nil), welcomeTopics...),
	}
}

func (c *Composer) partialReply(query string, results []domain.QueryResult) string {
	top := results[0]
	var b strings.Builder
	b.WriteString("I'm not fully sure this answers your question, but this looks related:\n\n")
	fmt.Fprintf(&b, "**%s %s**\n%s", top.Entry.Category.Icon(), top.Entry.Question, top.Entry.Answer)
	for _, r := range results[1:] {
		if r.Score < MediumThreshold {
			continue
		}
		excerpt := c.summarizer.Summarize(r.Entry.Answer, query, 1)
		fmt.Fprintf(&b, "\n\n**%s %s**\n%s", r.Entry.Category.Icon(), r.Entry.Question, excerpt)
	}
	return b.String()
}

func sources(results []domain.QueryResult) []domain.Source {
	out := make([]domain.Source, len(results))
	for i, r := range results {
		out[i] = domain.Source{
			Category: string(r.Entry.Category),
			Question: r.Entry.Question,
			Score:    r.Score,
		}
	}
	return out
}

// suggest returns the questions of the non-top results, skipping recently
// shown entries unless that would leave nothing.
func suggest(results []domain.QueryResult, recent []string) []string {
	rest := results[1:]
	shown := make(map[string]struct{}, len(recent))
	for _, id := range recent {
		shown[id] = struct{}{}
	}
	out := make([]string, 0, len(rest))
	for _, r := range rest {
		if _, ok := shown[r.Entry.ID]; ok {
			continue
		}
		out = append(out, r.Entry.Question)
	}
	if len(out) > 0 || len(shown) == 0 {
		return out
	}
	for _, r := range rest {
		out = append(out, r.Entry.Question)
	}
	return out
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
