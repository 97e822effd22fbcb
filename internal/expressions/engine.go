package expressions

import "context"

// Engine evaluates guard expressions against a trigger payload.
// Three implementations: CEL, Expr, and GoJQ.
type Engine interface {
	Name() string
	Compile(expression string) error
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// TriggerVar is the variable name under which every engine sees the trigger payload.
const TriggerVar = "trigger"
