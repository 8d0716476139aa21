// Package metrics exports engine metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rubberbot/internal/domain"
)

const namespace = "rubberbot"

// Exporter owns a private registry with the engine's collectors.
type Exporter struct {
	registry *prometheus.Registry

	answers          *prometheus.CounterVec
	queryErrors      *prometheus.CounterVec
	retrievalLatency prometheus.Histogram
	corpusEntries    prometheus.Gauge
	indexVariant     *prometheus.GaugeVec
	sessions         prometheus.Gauge
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for the retrieval latency histogram (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns buckets suited to sub-second retrieval.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}
}

// NewExporter creates and registers all collectors.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}
	e.answers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "answers_total",
			Help:      "Answers by confidence tier",
		},
		[]string{"tier"},
	)
	e.queryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "query_errors_total",
			Help:      "Queries that degraded to the out-of-domain answer because they failed to encode or search",
		},
		[]string{"stage"},
	)
	e.retrievalLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "latency_seconds",
			Help:      "Query encode and search latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)
	e.corpusEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "entries",
			Help:      "Number of indexed knowledge entries",
		},
	)
	e.indexVariant = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "variant",
			Help:      "Active vector representation (1 for the active variant)",
		},
		[]string{"variant"},
	)
	e.sessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of live chat sessions",
		},
	)

	registry.MustRegister(
		e.answers,
		e.queryErrors,
		e.retrievalLatency,
		e.corpusEntries,
		e.indexVariant,
		e.sessions,
	)
	return e
}

// RecordAnswer counts an answer in its tier.
func (e *Exporter) RecordAnswer(tier domain.Tier) {
	e.answers.WithLabelValues(string(tier)).Inc()
}

// RecordQueryError counts a degraded query; stage is "encode" or "search".
func (e *Exporter) RecordQueryError(stage string) {
	e.queryErrors.WithLabelValues(stage).Inc()
}

// ObserveRetrieval records the latency of one retrieval.
func (e *Exporter) ObserveRetrieval(d time.Duration) {
	e.retrievalLatency.Observe(d.Seconds())
}

// SetIndex publishes the corpus size and the active variant.
func (e *Exporter) SetIndex(entries int, variant domain.Variant) {
	e.corpusEntries.Set(float64(entries))
	for _, v := range []domain.Variant{domain.VariantDense, domain.VariantSparse} {
		value := 0.0
		if v == variant {
			value = 1
		}
		e.indexVariant.WithLabelValues(string(v)).Set(value)
	}
}

// SetSessions publishes the number of live sessions.
func (e *Exporter) SetSessions(n int) {
	e.sessions.Set(float64(n))
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
