package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for client operations and the reference
// backend's HTTP surface. A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations      *prometheus.CounterVec
	operationTiming *prometheus.HistogramVec
	staleResults    *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pantrycam",
				Subsystem: "operation",
				Name:      "total",
				Help:      "Completed async operations by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		operationTiming: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pantrycam",
				Subsystem: "operation",
				Name:      "duration_seconds",
				Help:      "Async operation duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		staleResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pantrycam",
				Subsystem: "operation",
				Name:      "stale_total",
				Help:      "Results discarded because a newer call of the same kind was issued.",
			},
			[]string{"kind"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pantrycam",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests served.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pantrycam",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
	reg.MustRegister(m.operations, m.operationTiming, m.staleResults, m.httpRequests, m.httpDuration)
	return m
}

// ObserveOperation records one finished operation.
func (m *Metrics) ObserveOperation(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(kind, outcome).Inc()
	m.operationTiming.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveStale records a discarded result.
func (m *Metrics) ObserveStale(kind string) {
	if m == nil {
		return
	}
	m.staleResults.WithLabelValues(kind).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, path, code).Inc()
	m.httpDuration.WithLabelValues(method, path, code).Observe(elapsed.Seconds())
}
