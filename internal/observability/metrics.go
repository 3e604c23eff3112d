package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestTransitions counts lifecycle operations by name and resulting status.
	RequestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civic_request_transitions_total",
		Help: "Total number of successful request lifecycle operations",
	}, []string{"operation", "status"})

	// TaskTransitions counts task status changes by target status.
	TaskTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civic_task_transitions_total",
		Help: "Total number of task status transitions",
	}, []string{"to"})

	// VersionConflicts counts optimistic save collisions that were retried.
	VersionConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civic_request_version_conflicts_total",
		Help: "Total number of optimistic concurrency conflicts on request saves",
	}, []string{"operation"})

	// Escalations counts requests escalated after an SLA breach.
	Escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civic_sla_escalations_total",
		Help: "Total number of SLA escalations",
	}, []string{"service_type"})

	// SLASweepDuration records how long escalation sweeps take.
	SLASweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "civic_sla_sweep_duration_seconds",
		Help:    "Duration of SLA escalation sweeps",
		Buckets: prometheus.DefBuckets,
	})

	// SLASweepFailures counts per-request failures inside a sweep.
	SLASweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civic_sla_sweep_failures_total",
		Help: "Total number of requests that failed SLA evaluation during a sweep",
	})

	// APIErrors counts error envelopes by route and code.
	APIErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civic_api_errors_total",
		Help: "Total number of API errors by path, method and code",
	}, []string{"path", "method", "code"})
)

// RecordError increments the API error counter.
func RecordError(path, method, code string) {
	APIErrors.WithLabelValues(path, method, code).Inc()
}

// RecordTransition increments the lifecycle operation counter.
func RecordTransition(operation, status string) {
	RequestTransitions.WithLabelValues(operation, status).Inc()
}
