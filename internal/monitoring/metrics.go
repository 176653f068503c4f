// Package monitoring exposes Prometheus metrics for the execution core.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the runtime.
type Metrics struct {
	// Execution metrics
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram

	// Module loader metrics
	ModulesLoaded *prometheus.CounterVec
	CacheHits     prometheus.Counter

	// Scheduler metrics
	TimerTicks prometheus.Counter

	// Context metrics
	ContextsActive prometheus.Gauge
}

// NewMetrics creates a metrics collector registered on the given
// registerer. Pass a fresh prometheus.NewRegistry() in tests to avoid
// duplicate-registration panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		ExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nodepack_executions_total",
				Help: "Total number of execute calls by outcome",
			},
			[]string{"status"},
		),
		ExecutionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nodepack_execution_duration_seconds",
				Help:    "Execute call duration in seconds, including async drain",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		ModulesLoaded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nodepack_modules_loaded_total",
				Help: "Modules evaluated by kind (commonjs, esm, builtin, json)",
			},
			[]string{"kind"},
		),
		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nodepack_module_cache_hits_total",
				Help: "Module resolutions served from the per-context cache",
			},
		),
		TimerTicks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nodepack_timer_ticks_total",
				Help: "Timer callbacks fired by the drain scheduler",
			},
		),
		ContextsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "nodepack_contexts_active",
				Help: "Live VM contexts",
			},
		),
	}
}

// ObserveExecution records one completed execute call.
func (m *Metrics) ObserveExecution(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.ExecutionsTotal.WithLabelValues(status).Inc()
	m.ExecutionDuration.Observe(d.Seconds())
}

// ObserveModule records one module evaluation.
func (m *Metrics) ObserveModule(kind string) {
	if m == nil {
		return
	}
	m.ModulesLoaded.WithLabelValues(kind).Inc()
}

// ObserveCacheHit records a cache-served resolution.
func (m *Metrics) ObserveCacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

// ObserveTick records one fired timer callback.
func (m *Metrics) ObserveTick() {
	if m != nil {
		m.TimerTicks.Inc()
	}
}
