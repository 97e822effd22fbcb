package expressions

import (
	"context"
	"fmt"
	"strings"

	"github.com/rendis/lendflow/pkg/schema"
)

// DefaultEngine is used when a condition names no engine.
const DefaultEngine = "cel"

// ConditionEvaluator runs workflow guard conditions on the engine each one names.
type ConditionEvaluator struct {
	engines map[string]Engine
}

// NewConditionEvaluator wires the CEL, Expr, and GoJQ engines.
func NewConditionEvaluator() (*ConditionEvaluator, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return NewConditionEvaluatorWith(celEngine, NewExprEngine(), NewGoJQEngine()), nil
}

// NewConditionEvaluatorWith builds an evaluator from explicit engines.
func NewConditionEvaluatorWith(engines ...Engine) *ConditionEvaluator {
	m := make(map[string]Engine, len(engines))
	for _, e := range engines {
		m[e.Name()] = e
	}
	return &ConditionEvaluator{engines: m}
}

// Check validates that every condition names a known engine and compiles.
func (c *ConditionEvaluator) Check(ctx context.Context, conds []schema.Condition) error {
	for i, cond := range conds {
		engine, err := c.engine(cond)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "condition %d: %s", i, schema.Message(err))
		}
		if strings.TrimSpace(cond.Expression) == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "condition %d: empty expression", i)
		}
		if err := engine.Compile(cond.Expression); err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "condition %d: %s", i, schema.Message(err))
		}
	}
	return nil
}

// Match reports whether every condition is truthy for the trigger payload.
// An empty list matches.
func (c *ConditionEvaluator) Match(ctx context.Context, conds []schema.Condition, triggerData map[string]any) (bool, error) {
	data := map[string]any{TriggerVar: triggerData}
	for _, cond := range conds {
		engine, err := c.engine(cond)
		if err != nil {
			return false, err
		}
		out, err := engine.Evaluate(ctx, cond.Expression, data)
		if err != nil {
			return false, err
		}
		if !truthy(out) {
			return false, nil
		}
	}
	return true, nil
}

func (c *ConditionEvaluator) engine(cond schema.Condition) (Engine, error) {
	name := cond.Engine
	if name == "" {
		name = DefaultEngine
	}
	e, ok := c.engines[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown expression engine %q", name)
	}
	return e, nil
}

// truthy reports whether an engine result lets the guard pass.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int, int64, float64:
		return fmt.Sprint(val) != "0"
	default:
		return true
	}
}
