package tfidf

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"rubberbot/internal/embedding"
	"rubberbot/internal/textutil"
	"rubberbot/internal/vector"
)

const (
	defaultMaxFeatures = 5000
	defaultNgramMax    = 2
)

// Config tunes the vectorizer.
type Config struct {
	MaxFeatures int
	NgramMax    int
}

// Embedder implements a TF-IDF vectorizer producing sparse vectors.
// It holds configuration only; the fitted vocabulary lives in a Vocabulary.
type Embedder struct {
	maxFeatures int
	ngramMax    int
}

// Vocabulary is the fitted term index and smoothed IDF values.
type Vocabulary struct {
	index map[string]int
	terms []string
	idf   []float64
	ngram int
}

// NewEmbedder creates a TF-IDF embedder with defaults applied.
func NewEmbedder(cfg Config) *Embedder {
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = defaultMaxFeatures
	}
	if cfg.NgramMax <= 0 {
		cfg.NgramMax = defaultNgramMax
	}
	return &Embedder{maxFeatures: cfg.MaxFeatures, ngramMax: cfg.NgramMax}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "tfidf" }

// Fit builds the vocabulary and IDF values from the corpus texts.
func (e *Embedder) Fit(_ context.Context, corpus []string) (embedding.FittedModel, error) {
	if len(corpus) == 0 {
		return nil, errors.New("empty corpus for TF-IDF fit")
	}
	df := make(map[string]int)
	counts := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, term := range terms(text, e.ngramMax) {
			counts[term]++
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			df[term]++
		}
	}
	if len(df) == 0 {
		return nil, errors.New("no tokens found in corpus; ensure tokenizer supports your language")
	}

	kept := make([]string, 0, len(df))
	for term := range df {
		kept = append(kept, term)
	}
	if len(kept) > e.maxFeatures {
		sort.Slice(kept, func(i, j int) bool {
			if counts[kept[i]] != counts[kept[j]] {
				return counts[kept[i]] > counts[kept[j]]
			}
			return kept[i] < kept[j]
		})
		kept = kept[:e.maxFeatures]
	}
	// Stable ordering for vocabulary
	sort.Strings(kept)

	vocab := &Vocabulary{
		index: make(map[string]int, len(kept)),
		terms: kept,
		idf:   make([]float64, len(kept)),
		ngram: e.ngramMax,
	}
	n := float64(len(corpus))
	for i, term := range kept {
		vocab.index[term] = i
		// Smoothed IDF
		vocab.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	return vocab, nil
}

// Embed projects text onto the fitted vocabulary. Out-of-vocabulary terms
// contribute nothing; text with no known terms yields the zero vector.
func (e *Embedder) Embed(_ context.Context, text string, model embedding.FittedModel) (vector.Vector, error) {
	if err := embedding.CheckText(text); err != nil {
		return vector.Vector{}, err
	}
	vocab, ok := model.(*Vocabulary)
	if !ok || vocab == nil {
		return vector.Vector{}, errors.New("tfidf embedder requires a fitted vocabulary")
	}
	return vocab.Transform(text), nil
}

// Kind reports that TF-IDF vectors are sparse.
func (v *Vocabulary) Kind() vector.Kind { return vector.KindSparse }

// Dimension returns the vocabulary size.
func (v *Vocabulary) Dimension() int { return len(v.terms) }

// Terms returns the vocabulary in index order.
func (v *Vocabulary) Terms() []string {
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}

// Transform computes the L2-normalized TF-IDF vector of text.
func (v *Vocabulary) Transform(text string) vector.Vector {
	tf := make(map[int]int)
	total := 0
	for _, term := range terms(text, v.ngram) {
		if idx, ok := v.index[term]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return vector.Sparse(nil)
	}
	weights := make([]vector.Term, 0, len(tf))
	for idx, count := range tf {
		tfv := float64(count) / float64(total)
		weights = append(weights, vector.Term{Index: idx, Weight: tfv * v.idf[idx]})
	}
	return vector.Sparse(weights).Normalize()
}

// terms returns unigrams through n-grams built from the stop-word-filtered
// token stream.
func terms(text string, ngramMax int) []string {
	tokens := textutil.Tokens(text)
	out := make([]string, 0, len(tokens)*ngramMax)
	for n := 1; n <= ngramMax; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}
