package schema

// ScheduledActionStatus is the lifecycle state of a scheduled action.
type ScheduledActionStatus string

const (
	ScheduledPending   ScheduledActionStatus = "pending"
	ScheduledRunning   ScheduledActionStatus = "running"
	ScheduledCompleted ScheduledActionStatus = "completed"
	ScheduledFailed    ScheduledActionStatus = "failed"
)

// ValidScheduledTransitions maps each state to the states it may move to.
// running -> running is the lease heartbeat.
var ValidScheduledTransitions = map[ScheduledActionStatus][]ScheduledActionStatus{
	ScheduledPending:   {ScheduledRunning},
	ScheduledRunning:   {ScheduledRunning, ScheduledCompleted, ScheduledFailed},
	ScheduledCompleted: {},
	ScheduledFailed:    {},
}

// CanTransition reports whether from -> to is allowed.
func (from ScheduledActionStatus) CanTransition(to ScheduledActionStatus) bool {
	for _, s := range ValidScheduledTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the entry is finalized.
func (s ScheduledActionStatus) Terminal() bool {
	return s == ScheduledCompleted || s == ScheduledFailed
}
