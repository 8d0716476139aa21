package main

import (
	"context"

	"rubberbot/internal/config"
	"rubberbot/internal/embedding"
	"rubberbot/internal/embedding/openai"
	"rubberbot/internal/embedding/tfidf"
	"rubberbot/internal/knowledge"
	"rubberbot/internal/service"
	"rubberbot/internal/session"
)

// buildEngine assembles the engine from cfg. metrics may be nil.
func buildEngine(ctx context.Context, cfg *config.AppConfig, sessions *session.Store, metrics service.Recorder) (*service.Engine, error) {
	var src knowledge.Source = knowledge.Embedded()
	if cfg.Knowledge.Path != "" {
		src = knowledge.FileSource(cfg.Knowledge.Path)
	}

	var preferred embedding.Embedder
	if cfg.Embedder.Prefer == "dense" {
		d := cfg.Embedder.Dense
		preferred = openai.NewClient(openai.Config{
			BaseURL:           d.BaseURL,
			APIKey:            d.APIKey(),
			Model:             d.Model,
			Timeout:           d.Timeout(),
			BatchSize:         d.BatchSize,
			Concurrency:       d.Concurrency,
			MaxRetries:        d.MaxRetries,
			RequestsPerSecond: d.RequestsPerSecond,
		}, logger)
	}

	return service.Initialize(ctx, src, service.Options{
		TopK:      cfg.Retrieval.TopK,
		Preferred: preferred,
		Fallback: tfidf.NewEmbedder(tfidf.Config{
			MaxFeatures: cfg.Embedder.Sparse.MaxFeatures,
			NgramMax:    cfg.Embedder.Sparse.NgramMax,
		}),
		Sessions: sessions,
		Logger:   logger,
		Metrics:  metrics,
	})
}
