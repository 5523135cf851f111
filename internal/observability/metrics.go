package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the engine's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	QueriesTotal     *prometheus.CounterVec
	QueryDurationMs  prometheus.Histogram
	RejectionsTotal  *prometheus.CounterVec
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	StepDurationMs   *prometheus.HistogramVec
	EmbeddingBatches prometheus.Counter
	IndexedFeatures  prometheus.Gauge
	IndexedDocuments prometheus.Gauge
}

var durationBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000}

// NewMetrics builds the collectors and registers them on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geoengine_queries_total",
			Help: "Total processed queries by intent and outcome",
		}, []string{"intent", "outcome"}),
		QueryDurationMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geoengine_query_duration_ms",
			Help:    "End-to-end query duration in milliseconds",
			Buckets: durationBuckets,
		}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geoengine_rejections_total",
			Help: "Queries rejected before execution",
		}, []string{"reason"}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geoengine_cache_hits_total",
			Help: "Result cache hits",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geoengine_cache_misses_total",
			Help: "Result cache misses",
		}),
		StepDurationMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geoengine_step_duration_ms",
			Help:    "Plan step duration in milliseconds",
			Buckets: durationBuckets,
		}, []string{"step"}),
		EmbeddingBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geoengine_embedding_batches_total",
			Help: "Embedding sub-batches submitted",
		}),
		IndexedFeatures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geoengine_indexed_features",
			Help: "Features held by the spatial index",
		}),
		IndexedDocuments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geoengine_indexed_documents",
			Help: "Documents held by the vector store",
		}),
	}

	m.registry.MustRegister(
		m.QueriesTotal,
		m.QueryDurationMs,
		m.RejectionsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.StepDurationMs,
		m.EmbeddingBatches,
		m.IndexedFeatures,
		m.IndexedDocuments,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveQuery(intent, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(intent, outcome).Inc()
	m.QueryDurationMs.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.RejectionsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) ObserveStep(step string, d time.Duration) {
	if m == nil {
		return
	}
	m.StepDurationMs.WithLabelValues(step).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveEmbeddingBatch() {
	if m == nil {
		return
	}
	m.EmbeddingBatches.Inc()
}

func (m *Metrics) SetIndexSizes(features, documents int) {
	if m == nil {
		return
	}
	m.IndexedFeatures.Set(float64(features))
	m.IndexedDocuments.Set(float64(documents))
}
