package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/lendflow/internal/diagram"
	"github.com/rendis/lendflow/internal/engine"
	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/internal/validation"
	"github.com/rendis/lendflow/pkg/schema"
)

const defaultQueryLimit = 50

// handleTrigger starts one run, or fans an event out when workflow_id is empty.
func (s *Server) handleTrigger(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID := req.GetString("workflow_id", "")
	triggerType := schema.TriggerType(req.GetString("trigger_type", ""))
	triggerData := mcp.ParseStringMap(req, "trigger_data", nil)

	if workflowID == "" {
		event := schema.TriggerEvent{TriggerType: triggerType, Data: triggerData}
		if err := s.validate.Struct(event); err != nil {
			return errorResult(validation.RequestError(err)), nil
		}
		runIDs, err := s.runner.HandleEvent(ctx, event)
		if err != nil && len(runIDs) == 0 {
			return errorResult(err), nil
		}
		out := map[string]any{"run_ids": nonNil(runIDs)}
		if err != nil {
			out["error"] = err.Error()
		}
		return marshalResult(out)
	}

	treq := schema.TriggerRequest{WorkflowID: workflowID, TriggerType: triggerType, TriggerData: triggerData}
	if raw, ok := req.GetArguments()["actions"]; ok && raw != nil {
		if err := remarshal(raw, &treq.Actions); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid actions: %v", err)), nil
		}
	}
	if err := s.validate.Struct(treq); err != nil {
		return errorResult(validation.RequestError(err)), nil
	}

	runID, err := s.runner.Execute(ctx, treq)
	if err != nil {
		return errorResult(err), nil
	}
	if req.GetBool("watch", false) {
		s.watch(ctx, runID)
	}

	run, err := s.ledger.Get(ctx, runID)
	if err != nil {
		return errorResult(err), nil
	}
	return marshalResult(run)
}

func (s *Server) handleSweep(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := s.sweeper.Sweep(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return marshalResult(summary)
}

func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}
	run, err := s.ledger.Get(ctx, runID)
	if err != nil {
		return errorResult(err), nil
	}
	return marshalResult(run)
}

// handleDefine validates and stores a workflow definition.
func (s *Server) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defRaw := mcp.ParseStringMap(req, "definition", nil)
	if defRaw == nil {
		return mcp.NewToolResultError("definition is required"), nil
	}
	var def schema.WorkflowDefinition
	if err := remarshal(defRaw, &def); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", err)), nil
	}

	wf, result, err := s.catalog.Define(ctx, &def, engine.DefineOptions{
		ID:      req.GetString("id", ""),
		Active:  req.GetBool("active", true),
		Replace: req.GetBool("replace", false),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return marshalResult(map[string]any{
		"workflow_id": wf.ID,
		"active":      wf.Active,
		"warnings":    result.Warnings,
	})
}

// handleQuery lists one resource type with optional filters.
func (s *Server) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	filter := mcp.ParseStringMap(req, "filter", nil)
	limit := extractInt(filter, "limit", defaultQueryLimit)

	switch resource {
	case "workflows":
		f := store.WorkflowFilter{
			TriggerType: schema.TriggerType(extractString(filter, "trigger_type")),
			Active:      extractBool(filter, "active"),
			Limit:       limit,
		}
		wfs, err := s.catalog.List(ctx, f)
		if err != nil {
			return errorResult(err), nil
		}
		return marshalResult(map[string]any{"workflows": nonNil(wfs)})
	case "runs":
		runs, err := s.store.ListRuns(ctx, store.RunFilter{
			WorkflowID: extractString(filter, "workflow_id"),
			Status:     schema.RunStatus(extractString(filter, "status")),
			Limit:      limit,
		})
		if err != nil {
			return errorResult(err), nil
		}
		return marshalResult(map[string]any{"runs": nonNil(runs)})
	case "scheduled_actions":
		items, err := s.store.ListScheduledActions(ctx, store.ScheduledActionFilter{
			RunID:  extractString(filter, "run_id"),
			Status: schema.ScheduledActionStatus(extractString(filter, "status")),
			Limit:  limit,
		})
		if err != nil {
			return errorResult(err), nil
		}
		return marshalResult(map[string]any{"scheduled_actions": nonNil(items)})
	case "notifications":
		notes, err := s.store.ListNotifications(ctx, store.NotificationFilter{
			UserID: extractString(filter, "user_id"),
			DealID: extractString(filter, "deal_id"),
			Limit:  limit,
		})
		if err != nil {
			return errorResult(err), nil
		}
		return marshalResult(map[string]any{"notifications": nonNil(notes)})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// handleDiagram renders a stored workflow, optionally with one run's results.
func (s *Server) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	wf, err := s.catalog.Get(ctx, workflowID)
	if err != nil {
		return errorResult(err), nil
	}

	var run *store.Run
	if runID := req.GetString("run_id", ""); runID != "" {
		run, err = s.ledger.Get(ctx, runID)
		if err != nil {
			return errorResult(err), nil
		}
		if run.WorkflowID != wf.ID {
			return mcp.NewToolResultError(fmt.Sprintf("run %s belongs to workflow %s", run.ID, run.WorkflowID)), nil
		}
	}

	model := diagram.Build(wf, run)
	switch req.GetString("format", "") {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case "image":
		png, err := diagram.RenderImage(ctx, model, diagram.ImagePNG)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", err)), nil
		}
		return mcp.NewToolResultImage(model.Title, base64.StdEncoding.EncodeToString(png), diagram.ImagePNG.MIMEType()), nil
	default:
		return mcp.NewToolResultError("format must be one of ascii, mermaid, image"), nil
	}
}

// watch maps the run to the calling session so RunNotifier pushes its events.
func (s *Server) watch(ctx context.Context, runID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Watch(runID, session.SessionID())
	}
}

// errorResult renders err as a tool error, keeping the code prefix.
func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

// remarshal converts a decoded JSON value into a typed one.
func remarshal(in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func extractString(filter map[string]any, key string) string {
	s, _ := filter[key].(string)
	return s
}

func extractBool(filter map[string]any, key string) *bool {
	switch v := filter[key].(type) {
	case bool:
		return &v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return &b
		}
	}
	return nil
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
