package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Assistant request outcomes.
const (
	OutcomeStructure = "structure"
	OutcomeTooLarge  = "too_large"
	OutcomeAnswered  = "answered"
	OutcomeFailed    = "failed"
)

var (
	// unitMutations counts committed structural changes by operation
	// (create, update, delete, hard_delete).
	unitMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hr_unit_mutations_total",
			Help: "Committed structural unit mutations.",
		},
		[]string{"op"},
	)

	// assistantRequests counts assistant requests by outcome.
	assistantRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hr_assistant_requests_total",
			Help: "Assistant requests by outcome.",
		},
		[]string{"outcome"},
	)

	completionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hr_completion_duration_seconds",
			Help:    "Latency of chat completion calls in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)
)

func init() {
	prometheus.MustRegister(unitMutations, assistantRequests, completionDuration)
}

// UnitMutation records one committed mutation.
func UnitMutation(op string) { unitMutations.WithLabelValues(op).Inc() }

// AssistantRequest records the outcome of one assistant request.
func AssistantRequest(outcome string) { assistantRequests.WithLabelValues(outcome).Inc() }

// ObserveCompletion records how long a completion call took.
func ObserveCompletion(d time.Duration) { completionDuration.Observe(d.Seconds()) }
