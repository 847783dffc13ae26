// Package metrics defines the Prometheus metric collectors used across the
// platform and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Feedback pipeline stage labels.
const (
	StageInitialRetrieval  = "initial_retrieval"
	StageTopical           = "topical"
	StageExpandedRetrieval = "expanded_retrieval"
	StageCausal            = "causal"
	StageFinalRetrieval    = "final_retrieval"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsIndexedTotal     prometheus.Counter
	IndexFlushesTotal    *prometheus.CounterVec
	ShardDocCount        *prometheus.GaugeVec
	CircuitBreakerState  *prometheus.GaugeVec

	FeedbackQueriesTotal      *prometheus.CounterVec
	FeedbackStageDuration     *prometheus.HistogramVec
	FeedbackDocumentsUsed     prometheus.Histogram
	FeedbackExpansionTerms    *prometheus.HistogramVec
	FeedbackClauseLimitExceed prometheus.Counter
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all metrics and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, miss, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_flushes_total",
				Help: "Total index flush operations by status.",
			},
			[]string{"status"},
		),
		ShardDocCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shard_document_count",
				Help: "Number of documents per shard.",
			},
			[]string{"shard_id"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		FeedbackQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedback_queries_total",
				Help: "Total relevance-feedback pipeline runs by result (ok, no_feedback, error).",
			},
			[]string{"result"},
		),
		FeedbackStageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feedback_stage_duration_seconds",
				Help:    "Duration of each feedback pipeline stage in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"stage"},
		),
		FeedbackDocumentsUsed: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "feedback_documents_used",
				Help:    "Number of feedback documents accepted per round.",
				Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
			},
		),
		FeedbackExpansionTerms: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feedback_expansion_terms",
				Help:    "Number of clauses in each expansion query by stage.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
			[]string{"stage"},
		),
		FeedbackClauseLimitExceed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "feedback_clause_limit_exceeded_total",
				Help: "Expansion queries rejected for exceeding the clause limit.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.IndexFlushesTotal,
		m.ShardDocCount,
		m.CircuitBreakerState,
		m.FeedbackQueriesTotal,
		m.FeedbackStageDuration,
		m.FeedbackDocumentsUsed,
		m.FeedbackExpansionTerms,
		m.FeedbackClauseLimitExceed,
	)

	return m
}

// ObserveStage records the time elapsed since start for a pipeline stage.
// It is safe to call on a nil *Metrics.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.FeedbackStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
