package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

// SearchMetrics records fan-out telemetry and circuit breaker states.
type SearchMetrics struct {
	backendLatency  *prometheus.HistogramVec
	backendResults  *prometheus.HistogramVec
	backendDegraded *prometheus.CounterVec
	searchTotal     *prometheus.CounterVec
	searchDuration  *prometheus.HistogramVec
	zeroResults     *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
}

func NewSearchMetrics(registerer prometheus.Registerer) *SearchMetrics {
	backendLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "backend_duration_seconds",
			Help:      "Per-backend search latency in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"backend"},
	)
	backendResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "backend_results",
			Help:      "Results returned per backend call.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"backend"},
	)
	backendDegraded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "backend_degraded_total",
			Help:      "Backend calls that failed or timed out.",
		},
		[]string{"backend"},
	)
	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Completed searches by query mode.",
		},
		[]string{"mode"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "End-to-end search latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
	zeroResults := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "zero_results_total",
			Help:      "Searches answered with no results.",
		},
		[]string{"mode"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"operation"},
	)

	registerer.MustRegister(
		backendLatency,
		backendResults,
		backendDegraded,
		searchTotal,
		searchDuration,
		zeroResults,
		breakerState,
	)

	return &SearchMetrics{
		backendLatency:  backendLatency,
		backendResults:  backendResults,
		backendDegraded: backendDegraded,
		searchTotal:     searchTotal,
		searchDuration:  searchDuration,
		zeroResults:     zeroResults,
		breakerState:    breakerState,
	}
}

func (m *SearchMetrics) ObserveBackend(backend string, latency time.Duration, results int, degraded bool) {
	m.backendLatency.WithLabelValues(backend).Observe(latency.Seconds())
	if degraded {
		m.backendDegraded.WithLabelValues(backend).Inc()
		return
	}
	m.backendResults.WithLabelValues(backend).Observe(float64(results))
}

func (m *SearchMetrics) ObserveSearch(mode domain.QueryMode, latency time.Duration, results int, _ bool) {
	label := string(mode)
	if label == "" {
		label = "unknown"
	}
	m.searchTotal.WithLabelValues(label).Inc()
	m.searchDuration.WithLabelValues(label).Observe(latency.Seconds())
	if results == 0 {
		m.zeroResults.WithLabelValues(label).Inc()
	}
}

// ObserveBreaker matches resilience.StateListener.
func (m *SearchMetrics) ObserveBreaker(operation string, _ gobreaker.State, to gobreaker.State) {
	m.breakerState.WithLabelValues(operation).Set(float64(to))
}
