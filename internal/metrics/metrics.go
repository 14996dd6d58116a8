package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genesis",
			Name:      "generations_total",
			Help:      "Dispatched generations by outcome (error kind or ok)",
		},
		[]string{"kind", "model", "outcome"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "genesis",
			Name:      "generation_duration_seconds",
			Help:      "Wall time from job start to marker completion",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	PollAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "genesis",
			Name:      "poll_attempts",
			Help:      "Status calls per polled provider job",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 50, 100},
		},
		[]string{"family"},
	)

	JobGateConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "genesis",
			Name:      "job_gate_conflicts_total",
			Help:      "Start calls rejected because a job was already running",
		},
	)

	StaleJobsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "genesis",
			Name:      "job_gate_stale_swept_total",
			Help:      "Running markers force closed by the staleness sweep",
		},
	)

	PersistTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genesis",
			Name:      "persist_total",
			Help:      "Result persistence outcomes (stored, degraded, failed)",
		},
		[]string{"result"},
	)

	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genesis",
			Name:      "provider_requests_total",
			Help:      "Outbound provider HTTP calls",
		},
		[]string{"family", "status"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genesis",
			Name:      "http_requests_total",
			Help:      "Inbound HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "genesis",
			Name:      "http_request_duration_seconds",
			Help:      "Inbound HTTP request latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 300},
		},
		[]string{"method", "route"},
	)
)

// ObserveGeneration records one finished dispatch.
func ObserveGeneration(kind, model, outcome string, took time.Duration) {
	GenerationsTotal.WithLabelValues(kind, model, outcome).Inc()
	GenerationDuration.WithLabelValues(kind).Observe(took.Seconds())
}
