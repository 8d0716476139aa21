package embedding

import (
	"context"
	"strings"
	"unicode/utf8"

	"rubberbot/internal/domain"
	"rubberbot/internal/vector"
)

// MaxQueryRunes bounds the length of a user query. Corpus text is not limited.
const MaxQueryRunes = 1000

// FittedModel is the immutable state an Embedder needs to encode text:
// a fitted vocabulary for sparse variants, model metadata for dense ones.
type FittedModel interface {
	Kind() vector.Kind
	Dimension() int
}

// Embedder converts free text into a vector.
// Fit runs once over the corpus texts; Embed uses the fitted model only.
type Embedder interface {
	Name() string
	Fit(ctx context.Context, corpus []string) (FittedModel, error)
	Embed(ctx context.Context, text string, model FittedModel) (vector.Vector, error)
}

// BatchEmbedder is implemented by embedders that encode many texts per call.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string, model FittedModel) ([]vector.Vector, error)
}

// EmbedAll encodes texts in order, batching when the embedder supports it.
func EmbedAll(ctx context.Context, e Embedder, texts []string, model FittedModel) ([]vector.Vector, error) {
	if b, ok := e.(BatchEmbedder); ok {
		return b.EmbedBatch(ctx, texts, model)
	}
	out := make([]vector.Vector, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text, model)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// CheckText rejects text that no variant can encode.
func CheckText(text string) error {
	if strings.TrimSpace(text) == "" {
		return &domain.QueryEncodingError{Reason: "empty text"}
	}
	return nil
}

// CheckQuery applies CheckText plus the query length limit.
func CheckQuery(query string) error {
	if err := CheckText(query); err != nil {
		return err
	}
	if utf8.RuneCountInString(query) > MaxQueryRunes {
		return &domain.QueryEncodingError{Reason: "query too long"}
	}
	return nil
}
