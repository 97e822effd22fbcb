package schema

import "time"

// RunStatus is the derived state of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether no further results are expected for the run.
func (s RunStatus) Terminal() bool {
	return s != RunStatusRunning
}

// ActionResult is the recorded outcome of one action execution.
type ActionResult struct {
	ActionID   string     `json:"action_id"`
	ActionType ActionType `json:"action_type"`
	Success    bool       `json:"success"`
	Message    string     `json:"message"`
	Scheduled  bool       `json:"scheduled,omitempty"`
	RecordedAt time.Time  `json:"recorded_at,omitzero"`
}

// RunCounts summarizes what a run has reported so far.
type RunCounts struct {
	Expected    int `json:"expected"`
	Succeeded   int `json:"succeeded"`
	Failed      int `json:"failed"`
	Outstanding int `json:"outstanding"` // scheduled entries still pending or running
}

// Reported is the number of results appended to the run.
func (c RunCounts) Reported() int {
	return c.Succeeded + c.Failed
}

// DeriveRunStatus computes a run's status from its counts.
// A run stays running until every expected action has reported and no
// scheduled entry is outstanding. Duplicate results count toward Reported.
func DeriveRunStatus(c RunCounts) RunStatus {
	if c.Outstanding > 0 || c.Reported() < c.Expected {
		return RunStatusRunning
	}
	switch {
	case c.Failed == 0:
		return RunStatusCompleted
	case c.Succeeded == 0:
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}

// SweepSummary is the aggregate outcome of one sweeper invocation.
type SweepSummary struct {
	Processed  int            `json:"processed"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped,omitempty"` // claimed entries another sweep took over
	Results    []ActionResult `json:"results"`
}
