package schema

// Event type constants published on the run event stream.
const (
	EventRunCreated       = "run.created"
	EventActionDispatched = "action.dispatched"
	EventActionScheduled  = "action.scheduled"
	EventActionResult     = "action.result"
	EventRunFinished      = "run.finished"
	EventSweepCompleted   = "sweep.completed"
)
