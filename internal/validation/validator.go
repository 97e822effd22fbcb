package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/rendis/lendflow/pkg/schema"
)

// Validator checks workflow definitions before they are stored.
type Validator interface {
	ValidateDefinition(ctx context.Context, def *schema.WorkflowDefinition) error
}

// ActionLookup reports whether an action type has a registered executor.
// Satisfied by *actions.Registry.
type ActionLookup interface {
	Has(actionType schema.ActionType) bool
}

// Issue is one finding at a JSON-path-like location in the definition.
type Issue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result aggregates errors (definition rejected) and warnings (stored, but
// some action will fail at dispatch time).
type Result struct {
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Valid reports whether no errors were recorded.
func (r *Result) Valid() bool { return len(r.Errors) == 0 }

// AddError records an error.
func (r *Result) AddError(path, code, message string) {
	r.Errors = append(r.Errors, Issue{Path: path, Code: code, Message: message})
}

// AddWarning records a warning.
func (r *Result) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, Issue{Path: path, Code: code, Message: message})
}

// Merge appends other's findings to r.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// ToError converts the result to a VALIDATION_ERROR, or nil when valid.
// The first error's code wins when all errors share it.
func (r *Result) ToError() error {
	if r.Valid() {
		return nil
	}
	code := r.Errors[0].Code
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		if e.Code != code {
			code = schema.ErrCodeValidation
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Path, e.Message))
	}
	msg := msgs[0]
	if len(msgs) > 1 {
		msg = fmt.Sprintf("%d validation errors: %s", len(msgs), strings.Join(msgs, "; "))
	}
	return schema.NewError(code, msg).WithDetails(map[string]any{
		"errors":   r.Errors,
		"warnings": r.Warnings,
	})
}
