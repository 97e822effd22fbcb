package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rendis/lendflow/internal/logging"
	"github.com/rendis/lendflow/internal/metrics"
	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/internal/streaming"
	"github.com/rendis/lendflow/pkg/schema"
)

// RunOptions describes a run at creation time.
type RunOptions struct {
	TriggerType     schema.TriggerType
	TriggerData     map[string]any
	ExpectedActions int
	ChainDepth      int
	ParentRunID     string
}

// Ledger records runs and their append-only action results.
type Ledger struct {
	store  store.Store
	clock  clockwork.Clock
	events publisher
	logger *slog.Logger
}

// NewLedger creates a Ledger. hub may be nil.
func NewLedger(s store.Store, hub streaming.EventHub, clock clockwork.Clock, logger *slog.Logger) *Ledger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithModule(logger, "ledger")
	return &Ledger{
		store:  s,
		clock:  clock,
		events: publisher{hub: hub, logger: logger},
		logger: logger,
	}
}

// CreateRun starts a run in status running and returns its id.
func (l *Ledger) CreateRun(ctx context.Context, workflowID string, opts RunOptions) (string, error) {
	run := &store.Run{
		ID:              uuid.New().String(),
		WorkflowID:      workflowID,
		Status:          schema.RunStatusRunning,
		TriggerType:     opts.TriggerType,
		TriggerData:     opts.TriggerData,
		ExpectedActions: opts.ExpectedActions,
		ChainDepth:      opts.ChainDepth,
		ParentRunID:     opts.ParentRunID,
		StartedAt:       l.clock.Now(),
	}
	if err := l.store.CreateRun(ctx, run); err != nil {
		return "", storeError(err, "create run for workflow %q", workflowID)
	}
	metrics.RecordRunCreated(opts.TriggerType)
	l.events.publish(ctx, streaming.StreamEvent{
		RunID:      run.ID,
		WorkflowID: workflowID,
		EventType:  schema.EventRunCreated,
		Timestamp:  run.StartedAt,
		Payload:    map[string]any{"expected_actions": opts.ExpectedActions, "chain_depth": opts.ChainDepth},
	})
	return run.ID, nil
}

// AppendResult appends result to the run. Two appends for the same action id
// produce two entries.
func (l *Ledger) AppendResult(ctx context.Context, runID string, result schema.ActionResult) error {
	if result.RecordedAt.IsZero() {
		result.RecordedAt = l.clock.Now()
	}
	seq, err := l.store.AppendResult(ctx, runID, &result)
	if err != nil {
		return storeError(err, "append result for action %q to run %q", result.ActionID, runID)
	}
	l.publishResult(ctx, runID, seq, result)
	return nil
}

// FinishScheduled finalizes the scheduled entry held by claim and appends
// result to its run in one store transaction. A claim that lost its lease
// fails with CONFLICT and records nothing.
func (l *Ledger) FinishScheduled(ctx context.Context, claim *store.ScheduledAction, result schema.ActionResult) error {
	if result.RecordedAt.IsZero() {
		result.RecordedAt = l.clock.Now()
	}
	seq, err := l.store.FinishScheduledAction(ctx, claim, &result)
	if err != nil {
		return storeError(err, "finish scheduled action %q of run %q", claim.ID, claim.RunID)
	}
	l.publishResult(ctx, claim.RunID, seq, result)
	return nil
}

func (l *Ledger) publishResult(ctx context.Context, runID string, seq int64, result schema.ActionResult) {
	l.events.publish(ctx, streaming.StreamEvent{
		RunID:      runID,
		WorkflowID: logging.WorkflowID(ctx),
		ActionID:   result.ActionID,
		EventType:  schema.EventActionResult,
		Timestamp:  result.RecordedAt,
		Payload:    map[string]any{"sequence": seq, "result": result},
	})
}

// Status derives the run's current status from its results and outstanding
// scheduled entries.
func (l *Ledger) Status(ctx context.Context, runID string) (schema.RunStatus, error) {
	counts, err := l.store.RunCounts(ctx, runID)
	if err != nil {
		return "", storeError(err, "count results for run %q", runID)
	}
	return schema.DeriveRunStatus(counts), nil
}

// Reconcile persists the derived status and stamps the completion time the
// first time nothing remains outstanding. Only the reconcile that stamps it
// publishes run.finished.
func (l *Ledger) Reconcile(ctx context.Context, runID string) (*store.Run, error) {
	now := l.clock.Now()
	run, finished, err := l.store.ReconcileRun(ctx, runID, now)
	if err != nil {
		return nil, storeError(err, "reconcile run %q", runID)
	}
	if finished {
		logging.LogWith(ctx, l.logger).InfoContext(ctx, "run finished", "status", run.Status)
		l.events.publish(ctx, streaming.StreamEvent{
			RunID:      run.ID,
			WorkflowID: run.WorkflowID,
			EventType:  schema.EventRunFinished,
			Timestamp:  now,
			Payload:    map[string]any{"status": run.Status},
		})
	}
	return run, nil
}

// Get returns the run with its ordered results.
func (l *Ledger) Get(ctx context.Context, runID string) (*store.Run, error) {
	run, err := l.store.GetRun(ctx, runID)
	if err != nil {
		return nil, storeError(err, "get run %q", runID)
	}
	if run.Results, err = l.store.ListResults(ctx, runID); err != nil {
		return nil, storeError(err, "list results for run %q", runID)
	}
	return run, nil
}

// storeError wraps err as STORE_ERROR unless it already carries a code.
func storeError(err error, format string, args ...any) error {
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeStore, format+": %v", append(args, err)...).WithCause(err)
}
