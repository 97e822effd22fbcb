package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/rendis/lendflow/internal/expressions"
	"github.com/rendis/lendflow/internal/scheduler"
	"github.com/rendis/lendflow/pkg/schema"
)

// validateSemantic checks what the JSON Schema cannot express: unique action
// IDs, registered action types, decodable configs, compilable conditions and
// a parseable schedule for scheduled triggers.
func validateSemantic(ctx context.Context, def *schema.WorkflowDefinition, lookup ActionLookup, conds *expressions.ConditionEvaluator) *Result {
	result := &Result{}

	seen := make(map[string]int, len(def.Actions))
	for i, action := range def.Actions {
		path := fmt.Sprintf("actions[%d]", i)
		if first, dup := seen[action.ID]; dup {
			result.AddError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate action id %q (first used by actions[%d])", action.ID, first))
		} else {
			seen[action.ID] = i
		}
		validateAction(action, path, lookup, result)
	}

	if conds != nil {
		for i, cond := range def.Conditions {
			if err := conds.Check(ctx, []schema.Condition{cond}); err != nil {
				result.AddError(fmt.Sprintf("conditions[%d]", i), schema.ErrCodeValidation,
					strings.TrimPrefix(schema.Message(err), "condition 0: "))
			}
		}
	}

	if def.TriggerType == schema.TriggerScheduled {
		if _, err := scheduler.ScheduleToCron(def.TriggerConfig); err != nil {
			result.AddError("triggerConfig", schema.ErrCodeValidation, schema.Message(err))
		}
	}

	return result
}

// validateAction decodes the config and warns about missing fields the
// dispatcher would report as failed results.
func validateAction(action schema.ActionDefinition, path string, lookup ActionLookup, result *Result) {
	cfg, err := action.Decode()
	if err != nil {
		result.AddError(path+".config", schema.ErrCodeValidation, schema.Message(err))
		return
	}
	if lookup != nil && !lookup.Has(action.Type) {
		result.AddError(path+".type", schema.ErrCodeActionUnavailable,
			fmt.Sprintf("action type %q not registered", action.Type))
	}

	warn := func(field, msg string) {
		result.AddWarning(path+".config."+field, schema.ErrCodeValidation, msg)
	}
	switch c := cfg.(type) {
	case *schema.NotificationConfig:
		if c.Title == "" && c.Message == "" {
			warn("title", "notification has neither title nor message")
		}
	case *schema.EmailConfig:
		if c.To == "" {
			warn("to", "no recipient; triggerData.userEmail must be present at run time")
		}
	case *schema.WebhookConfig:
		if c.URL == "" {
			warn("url", "no webhook URL configured")
		}
	case *schema.UpdateFieldConfig:
		if c.Field == "" {
			warn("field", "no field specified")
		}
	case *schema.TriggerWorkflowConfig:
		if c.WorkflowID == "" {
			warn("workflowId", "no target workflow specified")
		}
	}
}
