package store

import (
	"context"
	"time"

	"github.com/rendis/lendflow/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflows
	CreateWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error)

	// Runs and their append-only results
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	AppendResult(ctx context.Context, runID string, result *schema.ActionResult) (int64, error)
	ListResults(ctx context.Context, runID string) ([]schema.ActionResult, error)
	RunCounts(ctx context.Context, runID string) (schema.RunCounts, error)
	ReconcileRun(ctx context.Context, runID string, now time.Time) (*Run, bool, error)

	// Scheduled actions
	EnqueueScheduledAction(ctx context.Context, sa *ScheduledAction) error
	GetScheduledAction(ctx context.Context, id string) (*ScheduledAction, error)
	ListScheduledActions(ctx context.Context, filter ScheduledActionFilter) ([]*ScheduledAction, error)
	ClaimDueScheduledActions(ctx context.Context, params ClaimParams) ([]*ScheduledAction, error)
	RenewScheduledLease(ctx context.Context, claim *ScheduledAction, now time.Time) error
	FinishScheduledAction(ctx context.Context, claim *ScheduledAction, result *schema.ActionResult) (int64, error)

	// Notification sink
	CreateNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]*Notification, error)

	// Deal records
	UpsertDeal(ctx context.Context, deal *Deal) error
	GetDeal(ctx context.Context, id string) (*Deal, error)
	UpdateDealField(ctx context.Context, dealID, field string, value any, now time.Time) error

	// Trigger schedules
	UpsertTriggerSchedule(ctx context.Context, ts *TriggerSchedule) error
	GetTriggerSchedule(ctx context.Context, workflowID string) (*TriggerSchedule, error)
	ListTriggerSchedules(ctx context.Context, filter TriggerScheduleFilter) ([]*TriggerSchedule, error)
	MarkTriggerScheduleRun(ctx context.Context, workflowID string, lastRun, nextRun time.Time) error
	DeleteTriggerSchedule(ctx context.Context, workflowID string) error

	// Encrypted credentials referenced by action configs
	PutCredential(ctx context.Context, name string, value []byte, now time.Time) error
	GetCredential(ctx context.Context, name string) ([]byte, error)
	DeleteCredential(ctx context.Context, name string) error
	ListCredentials(ctx context.Context) ([]string, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
