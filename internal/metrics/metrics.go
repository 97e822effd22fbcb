// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rendis/lendflow/pkg/schema"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Dispatch metrics
var (
	// ActionsDispatched counts dispatched actions by type and outcome.
	ActionsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lendflow_actions_dispatched_total",
			Help: "Actions dispatched, by action type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	// ActionDispatchDuration observes dispatch latency by action type.
	ActionDispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lendflow_action_dispatch_duration_seconds",
			Help:    "Action dispatch latency.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"type"},
	)
)

// Sweep metrics
var (
	// SweepEntries counts scheduled entries processed by the sweeper.
	SweepEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lendflow_sweep_entries_total",
			Help: "Scheduled actions processed by the sweeper, by outcome.",
		},
		[]string{"outcome"},
	)

	// SweepDuration observes whole-sweep latency.
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lendflow_sweep_duration_seconds",
			Help:    "Duration of one sweep invocation.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Run metrics
var (
	// RunsCreated counts runs by trigger type.
	RunsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lendflow_runs_created_total",
			Help: "Workflow runs created, by trigger type.",
		},
		[]string{"trigger_type"},
	)
)

func outcome(success bool) string {
	if success {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// RecordDispatch records one dispatch outcome and its latency.
func RecordDispatch(actionType schema.ActionType, success bool, elapsed time.Duration) {
	ActionsDispatched.WithLabelValues(string(actionType), outcome(success)).Inc()
	ActionDispatchDuration.WithLabelValues(string(actionType)).Observe(elapsed.Seconds())
}

// RecordSweep records the per-entry outcomes and duration of one sweep.
func RecordSweep(successful, failed int, elapsed time.Duration) {
	SweepEntries.WithLabelValues(OutcomeSuccess).Add(float64(successful))
	SweepEntries.WithLabelValues(OutcomeFailure).Add(float64(failed))
	SweepDuration.Observe(elapsed.Seconds())
}

// RecordRunCreated counts a new run.
func RecordRunCreated(triggerType schema.TriggerType) {
	if triggerType == "" {
		triggerType = "manual"
	}
	RunsCreated.WithLabelValues(string(triggerType)).Inc()
}
