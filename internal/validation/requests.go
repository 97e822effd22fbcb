package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rendis/lendflow/pkg/schema"
)

// NewRequestValidator returns a validator for API and MCP request DTOs with
// the trigger_type and action_type tags registered.
func NewRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("trigger_type", func(fl validator.FieldLevel) bool {
		return schema.TriggerType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("action_type", func(fl validator.FieldLevel) bool {
		t := schema.ActionType(fl.Field().String())
		for _, known := range schema.ActionTypes {
			if t == known {
				return true
			}
		}
		return false
	})
	return v
}

// RequestError converts a validator error into a VALIDATION_ERROR listing
// every failed field.
func RequestError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return schema.NewError(schema.ErrCodeValidation, strings.Join(msgs, "; ")).WithCause(err)
}
