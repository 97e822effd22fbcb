package store

import (
	"time"

	"github.com/rendis/lendflow/pkg/schema"
)

// Workflow is the persisted automation rule.
type Workflow struct {
	ID string `json:"id"`
	schema.WorkflowDefinition
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FindAction returns the action with the given ID, if any.
func (w *Workflow) FindAction(id string) (schema.ActionDefinition, bool) {
	for _, a := range w.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return schema.ActionDefinition{}, false
}

// WorkflowFilter controls ListWorkflows.
type WorkflowFilter struct {
	TriggerType schema.TriggerType
	Active      *bool
	Limit       int
	Offset      int
}

// WorkflowUpdate holds optional fields for updating a workflow.
type WorkflowUpdate struct {
	Definition *schema.WorkflowDefinition
	Active     *bool
	UpdatedAt  time.Time
}

// Run is one trigger-to-completion execution of a workflow.
type Run struct {
	ID              string                `json:"id"`
	WorkflowID      string                `json:"workflow_id"`
	Status          schema.RunStatus      `json:"status"`
	TriggerType     schema.TriggerType    `json:"trigger_type,omitempty"`
	TriggerData     map[string]any        `json:"trigger_data,omitempty"`
	ExpectedActions int                   `json:"expected_actions"`
	ChainDepth      int                   `json:"chain_depth"`
	ParentRunID     string                `json:"parent_run_id,omitempty"`
	StartedAt       time.Time             `json:"started_at"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
	Results         []schema.ActionResult `json:"results,omitempty"`
}

// RunFilter controls ListRuns.
type RunFilter struct {
	WorkflowID string
	Status     schema.RunStatus
	Limit      int
	Offset     int
}

// ScheduledAction is a durable unit of delayed work tied to a run.
type ScheduledAction struct {
	ID           string                       `json:"id"`
	RunID        string                       `json:"run_id"`
	WorkflowID   string                       `json:"workflow_id"`
	Action       schema.ActionDefinition      `json:"action"`
	TriggerData  map[string]any               `json:"trigger_data"`
	ScheduledFor time.Time                    `json:"scheduled_for"`
	Status       schema.ScheduledActionStatus `json:"status"`
	ClaimedAt    *time.Time                   `json:"claimed_at,omitempty"`
	Attempts     int                          `json:"attempts"` // bumped by every claim; identifies the lease holder
	ExecutedAt   *time.Time                   `json:"executed_at,omitempty"`
	Error        string                       `json:"error,omitempty"`
	CreatedAt    time.Time                    `json:"created_at"`
}

// ScheduledActionFilter controls ListScheduledActions.
type ScheduledActionFilter struct {
	RunID  string
	Status schema.ScheduledActionStatus
	Limit  int
}

// ClaimParams controls ClaimDueScheduledActions. Entries still running with
// a claim at or before StaleBefore are reclaimed; a zero StaleBefore disables
// reclaiming.
type ClaimParams struct {
	Limit       int
	Now         time.Time
	StaleBefore time.Time
}

// Notification is one persisted in-app alert.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	DealID    string    `json:"deal_id,omitempty"`
	AlertType string    `json:"alert_type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationFilter controls ListNotifications.
type NotificationFilter struct {
	UserID string
	DealID string
	Limit  int
}

// Deal is the minimal deal record the engine mutates through update_field.
type Deal struct {
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TriggerSchedule tracks the next firing of a scheduled-trigger workflow.
type TriggerSchedule struct {
	WorkflowID string     `json:"workflow_id"`
	CronExpr   string     `json:"cron_expression"`
	NextRunAt  time.Time  `json:"next_run_at"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	Enabled    bool       `json:"enabled"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TriggerScheduleFilter controls ListTriggerSchedules. DueBefore selects
// enabled schedules whose next run is at or before the instant.
type TriggerScheduleFilter struct {
	Enabled   *bool
	DueBefore *time.Time
	Limit     int
}
