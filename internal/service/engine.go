// Package service wires the knowledge store, the active embedder, the
// similarity index and the response composer into the chat engine.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"rubberbot/internal/confidence"
	"rubberbot/internal/domain"
	"rubberbot/internal/embedding"
	"rubberbot/internal/embedding/tfidf"
	"rubberbot/internal/index"
	"rubberbot/internal/knowledge"
	"rubberbot/internal/session"
	"rubberbot/internal/vector"
)

// DefaultTopK is the number of results retrieved per query.
const DefaultTopK = 3

// Recorder receives engine metrics.
type Recorder interface {
	RecordAnswer(tier domain.Tier)
	RecordQueryError(stage string)
	ObserveRetrieval(d time.Duration)
	SetIndex(entries int, variant domain.Variant)
	SetSessions(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordAnswer(domain.Tier) {}
func (nopRecorder) RecordQueryError(string) {}
func (nopRecorder) ObserveRetrieval(time.Duration) {}
func (nopRecorder) SetIndex(int, domain.Variant) {}
func (nopRecorder) SetSessions(int) {}

// Options configures Initialize. Zero values are usable: no preferred
// encoder, a default TF-IDF fallback, no session memory.
type Options struct {
	TopK int
	// Preferred is tried first, normally a dense encoder.
	Preferred embedding.Embedder
	// Fallback is used when Preferred is nil or unavailable.
	Fallback embedding.Embedder
	Sessions *session.Store
	Composer *confidence.Composer
	Logger   *zap.Logger
	Metrics  Recorder
}

// Engine answers queries against an immutable, fully built index. It is
// safe for concurrent use.
type Engine struct {
	entries  []domain.KnowledgeEntry
	embedder embedding.Embedder
	model    embedding.FittedModel
	index    *index.Index
	variant  domain.Variant
	topK     int
	sessions *session.Store
	composer *confidence.Composer
	logger   *zap.Logger
	metrics  Recorder
}

// Initialize loads the corpus from src, selects the embedder once, encodes
// every entry and builds the index. Corpus errors are fatal; an unavailable
// preferred encoder degrades to the fallback.
func Initialize(ctx context.Context, src knowledge.Source, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	if opts.Fallback == nil {
		opts.Fallback = tfidf.NewEmbedder(tfidf.Config{})
	}
	if opts.Composer == nil {
		opts.Composer = confidence.NewComposer(nil)
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}

	entries, err := knowledge.Load(src)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.WithStack(domain.ErrEmptyCorpus)
	}
	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = indexText(e)
	}

	e := &Engine{
		entries:  entries,
		topK:     opts.TopK,
		sessions: opts.Sessions,
		composer: opts.Composer,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}

	var vecs []vector.Vector
	if opts.Preferred != nil {
		model, encoded, err := encodeCorpus(ctx, opts.Preferred, texts)
		if err == nil {
			e.embedder, e.model, vecs = opts.Preferred, model, encoded
		} else {
			unavailable := &domain.EmbedderUnavailableError{Embedder: opts.Preferred.Name(), Err: err}
			e.logger.Warn("preferred embedder unavailable, using fallback",
				zap.String("fallback", opts.Fallback.Name()), zap.Error(unavailable))
		}
	}
	if e.embedder == nil {
		model, encoded, err := encodeCorpus(ctx, opts.Fallback, texts)
		if err != nil {
			return nil, errors.Wrapf(err, "fallback embedder %s", opts.Fallback.Name())
		}
		e.embedder, e.model, vecs = opts.Fallback, model, encoded
	}

	e.index, err = index.Build(vecs)
	if err != nil {
		return nil, errors.Wrap(err, "build index")
	}
	e.variant = domain.VariantSparse
	if e.index.Kind() == vector.KindDense {
		e.variant = domain.VariantDense
	}
	e.metrics.SetIndex(len(entries), e.variant)
	e.logger.Info("knowledge index ready",
		zap.String("source", src.Name()),
		zap.Int("entries", len(entries)),
		zap.String("embedder", e.embedder.Name()),
		zap.String("variant", string(e.variant)),
		zap.Int("dimension", e.model.Dimension()))
	return e, nil
}

// indexText is the text encoded for an entry: its question followed by its
// keywords.
func indexText(e domain.KnowledgeEntry) string {
	if len(e.Keywords) == 0 {
		return e.Question
	}
	return e.Question + " " + strings.Join(e.Keywords, " ")
}

func encodeCorpus(ctx context.Context, emb embedding.Embedder, texts []string) (embedding.FittedModel, []vector.Vector, error) {
	model, err := emb.Fit(ctx, texts)
	if err != nil {
		return nil, nil, errors.Wrap(err, "fit")
	}
	vecs, err := embedding.EmbedAll(ctx, emb, texts, model)
	if err != nil {
		return nil, nil, errors.Wrap(err, "encode corpus")
	}
	return model, vecs, nil
}

// Retrieve returns up to k entries most similar to query, best first, with
// scores clamped to [0,1]. k <= 0 selects the engine default. Blank or
// over-long queries and encoding failures are returned as
// *domain.QueryEncodingError.
func (e *Engine) Retrieve(ctx context.Context, query string, k int) ([]domain.QueryResult, error) {
	if k <= 0 {
		k = e.topK
	}
	if err := embedding.CheckQuery(query); err != nil {
		return nil, err
	}
	q, err := e.embedder.Embed(ctx, query, e.model)
	if err != nil {
		var encErr *domain.QueryEncodingError
		if errors.As(err, &encErr) {
			return nil, err
		}
		return nil, &domain.QueryEncodingError{Reason: e.embedder.Name() + " failed", Err: err}
	}
	hits, err := e.index.Search(q, k)
	if err != nil {
		return nil, errors.Wrap(err, "search")
	}
	out := make([]domain.QueryResult, len(hits))
	for i, h := range hits {
		out[i] = domain.QueryResult{Entry: e.entries[h.Position], Score: clamp(h.Score)}
	}
	return out, nil
}

// Answer composes the response for query. It never fails: any per-query
// error degrades to the out-of-domain response. A non-empty sessionID
// enables suggestion diversity for that session.
func (e *Engine) Answer(ctx context.Context, query, sessionID string) domain.ChatResponse {
	start := time.Now()
	results, err := e.Retrieve(ctx, query, e.topK)
	e.metrics.ObserveRetrieval(time.Since(start))
	if err != nil {
		stage := "search"
		var encErr *domain.QueryEncodingError
		if errors.As(err, &encErr) {
			stage = "encode"
		}
		e.metrics.RecordQueryError(stage)
		e.logger.Warn("query degraded to out-of-domain answer",
			zap.String("stage", stage), zap.String("session", sessionID), zap.Error(err))
		resp := e.composer.OutOfDomain(0)
		e.metrics.RecordAnswer(resp.ConfidenceLevel)
		return resp
	}

	var resp domain.ChatResponse
	if e.sessions == nil || sessionID == "" {
		resp = e.composer.Compose(query, results, nil)
	} else {
		e.sessions.Update(sessionID, func(r *session.Record) {
			resp = e.composer.Compose(query, results, r.Recent())
			if resp.ConfidenceLevel != domain.TierLow {
				r.Push(results[0].Entry.ID)
			}
		})
		e.metrics.SetSessions(e.sessions.Len())
	}
	e.metrics.RecordAnswer(resp.ConfidenceLevel)
	e.logger.Debug("answered",
		zap.String("session", sessionID),
		zap.String("level", string(resp.ConfidenceLevel)),
		zap.Float64("confidence", resp.Confidence),
		zap.String("category", resp.Category))
	return resp
}

// ListTopics groups every question by category.
func (e *Engine) ListTopics() map[string][]string {
	return knowledge.Topics(e.entries)
}

// HealthStats reports the index state.
func (e *Engine) HealthStats() domain.HealthStats {
	return domain.HealthStats{
		EntryCount:   len(e.entries),
		IndexVariant: e.variant,
		Ready:        e.index != nil,
		Embedder:     e.embedder.Name(),
		Categories:   domain.CategoryNames(),
	}
}

// Welcome returns the greeting response.
func (e *Engine) Welcome() domain.ChatResponse {
	return e.composer.Welcome(len(e.entries))
}

// Variant returns the active vector representation.
func (e *Engine) Variant() domain.Variant { return e.variant }

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
