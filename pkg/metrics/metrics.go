// Package metrics defines the Prometheus collectors used by the matching
// engine and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. Each instance owns its registry,
// so several can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RecommendTotal       *prometheus.CounterVec
	RecommendLatency     prometheus.Histogram
	RecommendResults     prometheus.Histogram
	RecommendCandidates  prometheus.Histogram
	EmbeddingLatency     *prometheus.HistogramVec
	EmbeddingErrors      *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	IndexedPostings      prometheus.Gauge
	IndexMutationsTotal  *prometheus.CounterVec
	ANNTrainingsTotal    *prometheus.CounterVec
	ANNTrainingDuration  prometheus.Histogram
	ANNPartitions        prometheus.Gauge
	FeedEventsTotal      *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates and registers all collectors on a fresh registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
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
		RecommendTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recommend_requests_total",
				Help: "Recommendation requests by outcome (ok, empty, invalid, error).",
			},
			[]string{"outcome"},
		),
		RecommendLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recommend_latency_seconds",
				Help:    "End-to-end recommendation latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		RecommendResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recommend_results_count",
				Help:    "Number of results returned per recommendation.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		RecommendCandidates: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recommend_candidates_count",
				Help:    "Number of postings scored per recommendation.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
		),
		EmbeddingLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "embedding_latency_seconds",
				Help:    "Embedding provider call latency by model and operation.",
				Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"model", "op"},
		),
		EmbeddingErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "embedding_errors_total",
				Help: "Failed embedding calls by model and operation.",
			},
			[]string{"model", "op"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "embedding_cache_hits_total",
				Help: "Total number of embedding cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "embedding_cache_misses_total",
				Help: "Total number of embedding cache misses.",
			},
		),
		IndexedPostings: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexed_postings",
				Help: "Number of postings currently in the index.",
			},
		),
		IndexMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_mutations_total",
				Help: "Index mutations by operation and status.",
			},
			[]string{"op", "status"},
		),
		ANNTrainingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ann_trainings_total",
				Help: "ANN partition trainings by status.",
			},
			[]string{"status"},
		),
		ANNTrainingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ann_training_duration_seconds",
				Help:    "Time spent training ANN partitions.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		ANNPartitions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ann_partitions",
				Help: "Number of ANN partitions in the current index.",
			},
		),
		FeedEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_events_total",
				Help: "Posting feed events by operation and status.",
			},
			[]string{"op", "status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RecommendTotal,
		m.RecommendLatency,
		m.RecommendResults,
		m.RecommendCandidates,
		m.EmbeddingLatency,
		m.EmbeddingErrors,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.IndexedPostings,
		m.IndexMutationsTotal,
		m.ANNTrainingsTotal,
		m.ANNTrainingDuration,
		m.ANNPartitions,
		m.FeedEventsTotal,
		m.CircuitBreakerState,
	)
	return m
}

// Handler returns the Prometheus scrape HTTP handler for m's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveEmbedding records one embedding provider call.
func (m *Metrics) ObserveEmbedding(model, op string, took time.Duration, err error) {
	m.EmbeddingLatency.WithLabelValues(model, op).Observe(took.Seconds())
	if err != nil {
		m.EmbeddingErrors.WithLabelValues(model, op).Inc()
	}
}

// ObserveCache records an embedding cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) ObserveIndexMutation(op string, err error) {
	m.IndexMutationsTotal.WithLabelValues(op, status(err)).Inc()
}

func (m *Metrics) ObserveIndexTraining(partitions int, took time.Duration, err error) {
	m.ANNTrainingsTotal.WithLabelValues(status(err)).Inc()
	if err != nil {
		return
	}
	m.ANNTrainingDuration.Observe(took.Seconds())
	m.ANNPartitions.Set(float64(partitions))
}

func (m *Metrics) SetIndexedPostings(n int) {
	m.IndexedPostings.Set(float64(n))
}

// ObserveRecommend records the outcome of one recommendation.
func (m *Metrics) ObserveRecommend(outcome string, took time.Duration, candidates, results int) {
	m.RecommendTotal.WithLabelValues(outcome).Inc()
	m.RecommendLatency.Observe(took.Seconds())
	if outcome == "ok" || outcome == "empty" {
		m.RecommendCandidates.Observe(float64(candidates))
		m.RecommendResults.Observe(float64(results))
	}
}

// ObserveFeedEvent records one processed posting feed event.
func (m *Metrics) ObserveFeedEvent(op string, err error) {
	m.FeedEventsTotal.WithLabelValues(op, status(err)).Inc()
}

// SetBreakerState exports a circuit breaker state as 0, 1 or 2.
func (m *Metrics) SetBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
