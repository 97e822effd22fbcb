package actions

import (
	"context"
	"fmt"

	"github.com/rendis/lendflow/pkg/schema"
)

// Action performs the side effect of one action type.
type Action interface {
	Type() schema.ActionType
	Execute(ctx context.Context, input ActionInput) (*ActionOutput, error)
}

// ActionRegistry manages lookup of the available actions by type.
type ActionRegistry interface {
	Register(action Action) error
	Get(actionType schema.ActionType) (Action, error)
	List() []schema.ActionType
}

// ActionInput is the data provided to an action at execution time.
// Config has already been through template substitution.
type ActionInput struct {
	ActionID    string
	RunID       string
	WorkflowID  string
	Config      schema.ActionConfig
	TriggerData map[string]any
}

// ActionOutput is the outcome of a successful execution.
type ActionOutput struct {
	Message string `json:"message"`
}

func configAs[T schema.ActionConfig](input ActionInput) (T, error) {
	cfg, ok := input.Config.(T)
	if !ok {
		var zero T
		return zero, schema.NewErrorf(schema.ErrCodeValidation,
			"Invalid config: expected %s, got %T", zero.ActionType(), input.Config).
			WithAction(input.ActionID)
	}
	return cfg, nil
}

// dataString reads a string-valued trigger-data key; non-string values are
// formatted and nil yields "".
func dataString(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
