package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rendis/lendflow/internal/actions"
	"github.com/rendis/lendflow/internal/expressions"
	"github.com/rendis/lendflow/internal/logging"
	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/internal/streaming"
	"github.com/rendis/lendflow/internal/tracing"
	"github.com/rendis/lendflow/pkg/schema"
)

// ExecutorConfig holds the optional collaborators of an Executor.
type ExecutorConfig struct {
	Conditions *expressions.ConditionEvaluator // nil = guard conditions are not evaluated
	Hub        streaming.EventHub
	Clock      clockwork.Clock
	Logger     *slog.Logger
}

// Executor is the immediate execution path: it starts runs, dispatches
// undelayed actions in declaration order, and enqueues delayed ones.
type Executor struct {
	store      store.Store
	ledger     *Ledger
	dispatcher *Dispatcher
	conditions *expressions.ConditionEvaluator
	clock      clockwork.Clock
	events     publisher
	logger     *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(s store.Store, ledger *Ledger, dispatcher *Dispatcher, cfg ExecutorConfig) *Executor {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := logging.WithModule(cfg.Logger, "executor")
	return &Executor{
		store:      s,
		ledger:     ledger,
		dispatcher: dispatcher,
		conditions: cfg.Conditions,
		clock:      cfg.Clock,
		events:     publisher{hub: cfg.Hub, logger: logger},
		logger:     logger,
	}
}

// ChainRunner returns the runner trigger_workflow actions re-enter through.
func (e *Executor) ChainRunner() actions.ChainRunner {
	return e.RunChained
}

// Execute starts one run of req.WorkflowID and returns its id. Undelayed
// actions have reported by the time Execute returns; delayed actions are
// enqueued for the sweeper at now + delayMinutes.
func (e *Executor) Execute(ctx context.Context, req schema.TriggerRequest) (string, error) {
	if req.WorkflowID == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "workflowId is required")
	}
	depth := schema.ChainDepth(req.TriggerData)

	ctx, span := tracing.StartSpan(ctx, "execute",
		attribute.String(tracing.WorkflowIDKey, req.WorkflowID),
		attribute.String(tracing.TriggerTypeKey, string(req.TriggerType)),
		attribute.Int(tracing.ChainDepthKey, depth),
	)
	defer span.End()

	runID, err := e.execute(ctx, req, depth)
	if err != nil {
		tracing.SetError(span, err)
		return "", err
	}
	span.SetAttributes(attribute.String(tracing.RunIDKey, runID))
	return runID, nil
}

func (e *Executor) execute(ctx context.Context, req schema.TriggerRequest, depth int) (string, error) {
	if depth > schema.MaxChainDepth {
		return "", schema.NewErrorf(schema.ErrCodeChainDepth,
			"Chain depth %d exceeds maximum of %d", depth, schema.MaxChainDepth).
			WithDetails(map[string]any{"workflow_id": req.WorkflowID, "chain_depth": depth})
	}

	wf, err := e.store.GetWorkflow(ctx, req.WorkflowID)
	if err != nil {
		return "", err
	}
	if !wf.Active {
		return "", schema.NewErrorf(schema.ErrCodeWorkflowInactive, "Workflow %s is inactive", wf.ID)
	}

	if e.conditions != nil && len(wf.Conditions) > 0 {
		ok, err := e.conditions.Match(ctx, wf.Conditions, req.TriggerData)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", schema.NewErrorf(schema.ErrCodeConditionNotMet, "Conditions not met for workflow %s", wf.ID)
		}
	}

	acts := wf.Actions
	if len(req.Actions) > 0 {
		acts = req.Actions
	}
	triggerType := req.TriggerType
	if triggerType == "" {
		triggerType = wf.TriggerType
	}
	parentRunID, _ := req.TriggerData[schema.KeyParentRunID].(string)

	runID, err := e.ledger.CreateRun(ctx, wf.ID, RunOptions{
		TriggerType:     triggerType,
		TriggerData:     req.TriggerData,
		ExpectedActions: len(acts),
		ChainDepth:      depth,
		ParentRunID:     parentRunID,
	})
	if err != nil {
		return "", err
	}

	ctx = logging.WithRun(ctx, wf.ID, runID)
	log := logging.LogWith(ctx, e.logger)
	log.InfoContext(ctx, "run started", "actions", len(acts), "chain_depth", depth)

	// Once the run exists every action must report and the run must be
	// reconciled, even if the caller's context ends first. A chained run
	// inherits its parent's dispatch deadline, for example. Dispatch keeps
	// ctx, so a cancelled caller turns the remaining actions into failed
	// results instead of leaving the run running.
	writeCtx := context.WithoutCancel(ctx)

	for _, action := range acts {
		if action.Delayed() {
			if err := e.schedule(writeCtx, runID, wf.ID, action, req.TriggerData); err != nil {
				// The entry never reaches the store, so record the failure
				// here or the run would stay running forever.
				log.ErrorContext(ctx, "scheduling action failed", "action_id", action.ID, "error", err)
				result := schema.ActionResult{
					ActionID:   action.ID,
					ActionType: action.Type,
					Message:    "Failed to schedule action: " + schema.Message(err),
					Scheduled:  true,
				}
				if err := e.ledger.AppendResult(writeCtx, runID, result); err != nil {
					return runID, err
				}
			}
			continue
		}

		e.events.publish(writeCtx, streaming.StreamEvent{
			RunID:      runID,
			WorkflowID: wf.ID,
			ActionID:   action.ID,
			EventType:  schema.EventActionDispatched,
			Timestamp:  e.clock.Now(),
		})
		result := e.dispatcher.Dispatch(ctx, action, req.TriggerData)
		if err := e.ledger.AppendResult(writeCtx, runID, result); err != nil {
			return runID, err
		}
	}

	if _, err := e.ledger.Reconcile(writeCtx, runID); err != nil {
		return runID, err
	}
	return runID, nil
}

func (e *Executor) schedule(ctx context.Context, runID, workflowID string, action schema.ActionDefinition, triggerData map[string]any) error {
	now := e.clock.Now()
	sa := &store.ScheduledAction{
		ID:           uuid.New().String(),
		RunID:        runID,
		WorkflowID:   workflowID,
		Action:       action,
		TriggerData:  triggerData,
		ScheduledFor: now.Add(time.Duration(action.DelayMinutes) * time.Minute),
		Status:       schema.ScheduledPending,
		CreatedAt:    now,
	}
	if err := e.store.EnqueueScheduledAction(ctx, sa); err != nil {
		return storeError(err, "enqueue action %q", action.ID)
	}
	e.events.publish(ctx, streaming.StreamEvent{
		RunID:      runID,
		WorkflowID: workflowID,
		ActionID:   action.ID,
		EventType:  schema.EventActionScheduled,
		Timestamp:  now,
		Payload:    map[string]any{"scheduled_action_id": sa.ID, "scheduled_for": sa.ScheduledFor},
	})
	return nil
}

// RunChained re-enters the immediate path for workflowID with chained
// trigger data. Inactive or missing targets fail without creating a run.
func (e *Executor) RunChained(ctx context.Context, workflowID string, triggerData map[string]any) (string, error) {
	return e.Execute(ctx, schema.TriggerRequest{
		WorkflowID:  workflowID,
		TriggerType: schema.TriggerChained,
		TriggerData: triggerData,
	})
}

// HandleEvent runs every active workflow whose trigger matches event and
// returns the ids of the runs it started. Workflows whose guard conditions
// reject the event are skipped; other failures are joined into the error.
func (e *Executor) HandleEvent(ctx context.Context, event schema.TriggerEvent) ([]string, error) {
	active := true
	wfs, err := e.store.ListWorkflows(ctx, store.WorkflowFilter{TriggerType: event.TriggerType, Active: &active})
	if err != nil {
		return nil, storeError(err, "list workflows for %s", event.TriggerType)
	}

	var runIDs []string
	var errs []error
	for _, wf := range wfs {
		if !Match(wf, event) {
			continue
		}
		runID, err := e.Execute(ctx, schema.TriggerRequest{
			WorkflowID:  wf.ID,
			TriggerType: event.TriggerType,
			TriggerData: event.Data,
		})
		switch {
		case err == nil:
			runIDs = append(runIDs, runID)
		case schema.IsCode(err, schema.ErrCodeConditionNotMet):
			e.logger.DebugContext(ctx, "workflow skipped", "workflow_id", wf.ID, "reason", schema.Message(err))
		default:
			e.logger.ErrorContext(ctx, "workflow run failed", "workflow_id", wf.ID, "error", err)
			if runID != "" {
				runIDs = append(runIDs, runID)
			}
			errs = append(errs, err)
		}
	}
	return runIDs, errors.Join(errs...)
}
