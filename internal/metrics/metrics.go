// Package metrics exposes Prometheus instrumentation for the sync core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gizmo_stock"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics owns a private registry so several instances can coexist in
// tests.
type Metrics struct {
	registry *prometheus.Registry

	updates        *prometheus.CounterVec
	retries        *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	batchDuration  *prometheus.HistogramVec
	sessionChanges prometheus.Gauge
}

// New creates and registers the collectors. withRuntime adds the Go and
// process collectors.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		updates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Per-product updates dispatched to the POS, by field category and outcome",
		}, []string{"category", "outcome"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pos_retries_total",
			Help:      "Retried POS requests, by log category",
		}, []string{"category"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache reads, by cache and result",
		}, []string{"cache", "result"}),
		batchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one category batch",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"category"}),
		sessionChanges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_changes",
			Help:      "Change records in the current counting session",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveUpdate counts one dispatched update.
func (m *Metrics) ObserveUpdate(category string, ok bool) {
	outcome := OutcomeSuccess
	if !ok {
		outcome = OutcomeFailure
	}
	m.updates.WithLabelValues(category, outcome).Inc()
}

// ObserveRetry counts one retry of a POS request.
func (m *Metrics) ObserveRetry(category string) {
	m.retries.WithLabelValues(category).Inc()
}

// ObserveCacheLookup counts one cache read.
func (m *Metrics) ObserveCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

// ObserveBatch records how long a category batch took.
func (m *Metrics) ObserveBatch(category string, d time.Duration) {
	m.batchDuration.WithLabelValues(category).Observe(d.Seconds())
}

// SetSessionChanges sets the session gauge.
func (m *Metrics) SetSessionChanges(n int) {
	m.sessionChanges.Set(float64(n))
}
