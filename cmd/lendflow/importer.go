package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/rendis/lendflow/internal/engine"
	"github.com/rendis/lendflow/internal/validation"
	"github.com/rendis/lendflow/pkg/schema"
)

// workflowFile is the YAML document accepted by "workflows import":
//
//	workflows:
//	  - id: term-sheet-alert
//	    active: true
//	    name: Term sheet issued
//	    triggerType: deal_stage_change
//	    actions: [...]
type workflowFile struct {
	Workflows []map[string]any `yaml:"workflows"`
}

// importedWorkflow is one entry of a workflow file, already converted to JSON.
type importedWorkflow struct {
	ID         string
	Active     bool
	Definition json.RawMessage
}

// parseWorkflowFile decodes YAML, lifts the id and active keys out of each
// entry and re-encodes the remaining definition as JSON.
func parseWorkflowFile(data []byte) ([]importedWorkflow, error) {
	var file workflowFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse workflow file: %w", err)
	}
	if len(file.Workflows) == 0 {
		return nil, fmt.Errorf("workflow file has no workflows")
	}

	out := make([]importedWorkflow, 0, len(file.Workflows))
	for i, entry := range file.Workflows {
		item := importedWorkflow{Active: true}
		if id, ok := entry["id"]; ok {
			s, ok := id.(string)
			if !ok {
				return nil, fmt.Errorf("workflows[%d]: id must be a string", i)
			}
			item.ID = s
			delete(entry, "id")
		}
		if active, ok := entry["active"]; ok {
			b, ok := active.(bool)
			if !ok {
				return nil, fmt.Errorf("workflows[%d]: active must be a boolean", i)
			}
			item.Active = b
			delete(entry, "active")
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("workflows[%d]: %w", i, err)
		}
		item.Definition = raw
		out = append(out, item)
	}
	return out, nil
}

// importWorkflows validates every entry against the workflow schema before
// storing any of them, then defines each through the catalog.
func importWorkflows(ctx context.Context, catalog *engine.Catalog, jsonSchema *validation.JSONSchemaValidator, items []importedWorkflow, replace bool, logger *slog.Logger) ([]string, error) {
	defs := make([]*schema.WorkflowDefinition, len(items))
	for i, item := range items {
		if res := jsonSchema.ValidateRaw(item.Definition); !res.Valid() {
			return nil, fmt.Errorf("workflows[%d]: %w", i, res.ToError())
		}
		var def schema.WorkflowDefinition
		if err := json.Unmarshal(item.Definition, &def); err != nil {
			return nil, fmt.Errorf("workflows[%d]: %w", i, err)
		}
		defs[i] = &def
	}

	ids := make([]string, 0, len(items))
	for i, item := range items {
		wf, result, err := catalog.Define(ctx, defs[i], engine.DefineOptions{
			ID:      item.ID,
			Active:  item.Active,
			Replace: replace,
		})
		if err != nil {
			return ids, fmt.Errorf("workflows[%d] %q: %w", i, defs[i].Name, err)
		}
		for _, w := range result.Warnings {
			logger.WarnContext(ctx, "workflow imported with warning",
				"workflow_id", wf.ID, "path", w.Path, "message", w.Message)
		}
		ids = append(ids, wf.ID)
	}
	return ids, nil
}
