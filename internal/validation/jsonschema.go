package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/lendflow/pkg/schema"
)

const workflowSchemaURL = "https://lendflow.dev/schemas/workflow.json"

// workflowSchemaJSON is the JSON Schema for authored workflow definitions.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://lendflow.dev/schemas/workflow.json",
  "type": "object",
  "required": ["name", "triggerType", "actions"],
  "properties": {
    "name": { "type": "string", "minLength": 1 },
    "description": { "type": "string" },
    "triggerType": {
      "type": "string",
      "enum": ["deal_stage_change", "lender_stage_change", "new_deal", "deal_closed", "scheduled", "chained"]
    },
    "triggerConfig": { "type": "object" },
    "conditions": {
      "type": "array",
      "items": { "$ref": "#/$defs/condition" }
    },
    "actions": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/action" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "condition": {
      "type": "object",
      "required": ["expression"],
      "properties": {
        "engine": { "type": "string", "enum": ["cel", "expr", "jq"] },
        "expression": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": false
    },
    "action": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": {
          "type": "string",
          "enum": ["send_notification", "send_email", "webhook", "update_field", "trigger_workflow"]
        },
        "config": { "type": ["object", "null"] },
        "delayMinutes": { "type": "integer", "minimum": 0 }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator checks the structure of workflow definitions against
// the embedded JSON Schema (Draft 2020-12). Safe for concurrent use.
type JSONSchemaValidator struct {
	workflowSchema *jsonschema.Schema
}

// NewJSONSchemaValidator compiles the workflow schema.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource(workflowSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}
	compiled, err := c.Compile(workflowSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}
	return &JSONSchemaValidator{workflowSchema: compiled}, nil
}

// Validate checks def and returns one issue per schema violation.
func (v *JSONSchemaValidator) Validate(def *schema.WorkflowDefinition) *Result {
	result := &Result{}
	doc, err := toJSONValue(def)
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, "failed to serialize workflow definition: "+err.Error())
		return result
	}
	if err := v.workflowSchema.Validate(doc); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			result.AddError("/", schema.ErrCodeValidation, err.Error())
			return result
		}
		for _, violation := range collectViolations(verr) {
			result.AddError(violation.Path, schema.ErrCodeValidation, violation.Message)
		}
	}
	return result
}

// ValidateRaw checks an already-decoded JSON document, e.g. one converted
// from YAML, before it is bound to a WorkflowDefinition.
func (v *JSONSchemaValidator) ValidateRaw(raw []byte) *Result {
	result := &Result{}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, "invalid JSON: "+err.Error())
		return result
	}
	if err := v.workflowSchema.Validate(doc); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			for _, violation := range collectViolations(verr) {
				result.AddError(violation.Path, schema.ErrCodeValidation, violation.Message)
			}
		} else {
			result.AddError("/", schema.ErrCodeValidation, err.Error())
		}
	}
	return result
}

// toJSONValue round-trips a Go value through JSON so numbers become json.Number,
// which the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// collectViolations walks a ValidationError tree and returns its leaves.
func collectViolations(verr *jsonschema.ValidationError) []Issue {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []Issue{{Path: loc, Code: schema.ErrCodeValidation, Message: verr.Error()}}
	}
	var out []Issue
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
