package validation

import (
	"context"

	"github.com/rendis/lendflow/internal/expressions"
	"github.com/rendis/lendflow/pkg/schema"
)

// WorkflowValidator runs the two-stage pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (action IDs and configs, conditions, schedule)
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
	actions    ActionLookup
	conditions *expressions.ConditionEvaluator
}

// NewWorkflowValidator creates a WorkflowValidator. lookup and conds may be
// nil to skip action registration and condition compilation checks.
func NewWorkflowValidator(lookup ActionLookup, conds *expressions.ConditionEvaluator) (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{jsonSchema: jsv, actions: lookup, conditions: conds}, nil
}

// Validate runs the pipeline. Structural errors short-circuit.
func (wv *WorkflowValidator) Validate(ctx context.Context, def *schema.WorkflowDefinition) *Result {
	if def == nil {
		r := &Result{}
		r.AddError("/", schema.ErrCodeValidation, "workflow definition is nil")
		return r
	}
	result := wv.jsonSchema.Validate(def)
	if !result.Valid() {
		return result
	}
	result.Merge(validateSemantic(ctx, def, wv.actions, wv.conditions))
	return result
}

// ValidateDefinition satisfies the Validator interface.
func (wv *WorkflowValidator) ValidateDefinition(ctx context.Context, def *schema.WorkflowDefinition) error {
	return wv.Validate(ctx, def).ToError()
}

// Schema exposes the structural validator for raw documents.
func (wv *WorkflowValidator) Schema() *JSONSchemaValidator { return wv.jsonSchema }
