package actions

import (
	"context"
	"fmt"
	"maps"

	"github.com/rendis/lendflow/pkg/schema"
)

// ChainRunner starts a run of another workflow and returns the new run id.
// The executor satisfies this by wiring it after construction (late-bind).
type ChainRunner func(ctx context.Context, workflowID string, triggerData map[string]any) (string, error)

// TriggerWorkflowAction implements the "trigger_workflow" action.
type TriggerWorkflowAction struct {
	run ChainRunner
}

// NewTriggerWorkflowAction creates a trigger_workflow action. run may be nil
// until SetRunner is called.
func NewTriggerWorkflowAction(run ChainRunner) *TriggerWorkflowAction {
	return &TriggerWorkflowAction{run: run}
}

// SetRunner binds the runner used to re-enter the immediate execution path.
func (a *TriggerWorkflowAction) SetRunner(run ChainRunner) {
	a.run = run
}

func (a *TriggerWorkflowAction) Type() schema.ActionType { return schema.ActionTriggerWorkflow }

func (a *TriggerWorkflowAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	cfg, err := configAs[*schema.TriggerWorkflowConfig](input)
	if err != nil {
		return nil, err
	}
	if cfg.WorkflowID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "No target workflow specified")
	}
	if a.run == nil {
		return nil, schema.NewError(schema.ErrCodeActionUnavailable, "workflow chaining not configured")
	}

	runID, err := a.run(ctx, cfg.WorkflowID, ChainedTriggerData(input))
	if err != nil {
		return nil, err
	}
	return &ActionOutput{Message: fmt.Sprintf("Triggered workflow %s (run %s)", cfg.WorkflowID, runID)}, nil
}

// ChainedTriggerData copies the caller's trigger data and marks it as chained
// from input's action, one level deeper than the caller.
func ChainedTriggerData(input ActionInput) map[string]any {
	out := make(map[string]any, len(input.TriggerData)+4)
	maps.Copy(out, input.TriggerData)
	out[schema.KeyChainedFrom] = input.ActionID
	out[schema.KeyIsChained] = true
	out[schema.KeyChainDepth] = schema.ChainDepth(input.TriggerData) + 1
	if input.RunID != "" {
		out[schema.KeyParentRunID] = input.RunID
	}
	return out
}
