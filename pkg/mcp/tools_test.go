package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/lendflow/internal/app"
	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/pkg/schema"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *app.App, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	a, err := app.New(context.Background(), app.Config{
		DBPath: "file:" + filepath.Join(t.TempDir(), "mcp.db"),
		Clock:  clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	s := NewServer(ServerDeps{
		Store:   a.Store,
		Catalog: a.Catalog,
		Ledger:  a.Ledger,
		Runner:  a.Executor,
		Sweeper: a.Sweeper,
		Hub:     a.Hub,
	})
	return s, a, clock
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	require.False(t, result.IsError, extractText(t, result))
	require.NoError(t, json.Unmarshal([]byte(extractText(t, result)), target))
}

func stageDefinition() map[string]any {
	return map[string]any{
		"name":          "Term sheet issued",
		"triggerType":   "deal_stage_change",
		"triggerConfig": map[string]any{"toStage": "term_sheet", "fromStage": "any"},
		"actions": []any{
			map[string]any{
				"id":     "notify",
				"type":   "send_notification",
				"config": map[string]any{"title": "Term sheet for {{dealName}}"},
			},
			map[string]any{
				"id":           "nudge",
				"type":         "send_notification",
				"config":       map[string]any{"title": "Follow up on {{dealName}}"},
				"delayMinutes": float64(60),
			},
		},
	}
}

func define(t *testing.T, s *Server, id string) {
	t.Helper()
	res, err := s.handleDefine(context.Background(), buildRequest("lendflow.define", map[string]any{
		"id":         id,
		"definition": stageDefinition(),
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, extractText(t, res))
}

func TestDefineTool(t *testing.T) {
	s, a, _ := newTestServer(t)

	res, err := s.handleDefine(context.Background(), buildRequest("lendflow.define", map[string]any{
		"id":         "wf-ts",
		"definition": stageDefinition(),
		"active":     false,
	}))
	require.NoError(t, err)
	var out struct {
		WorkflowID string `json:"workflow_id"`
		Active     bool   `json:"active"`
	}
	unmarshalResult(t, res, &out)
	assert.Equal(t, "wf-ts", out.WorkflowID)
	assert.False(t, out.Active)

	wf, err := a.Store.GetWorkflow(context.Background(), "wf-ts")
	require.NoError(t, err)
	require.Len(t, wf.Actions, 2)
	assert.Equal(t, 60, wf.Actions[1].DelayMinutes)
}

func TestDefineTool_Errors(t *testing.T) {
	s, _, _ := newTestServer(t)

	res, err := s.handleDefine(context.Background(), buildRequest("lendflow.define", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	bad := stageDefinition()
	bad["actions"] = []any{}
	res, err = s.handleDefine(context.Background(), buildRequest("lendflow.define", map[string]any{"definition": bad}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, extractText(t, res), schema.ErrCodeValidation)

	define(t, s, "wf-ts")
	res, err = s.handleDefine(context.Background(), buildRequest("lendflow.define", map[string]any{
		"id": "wf-ts", "definition": stageDefinition(),
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, extractText(t, res), schema.ErrCodeConflict)
}

func TestTriggerStatusSweep(t *testing.T) {
	s, _, clock := newTestServer(t)
	ctx := context.Background()
	define(t, s, "wf-ts")

	res, err := s.handleTrigger(ctx, buildRequest("lendflow.trigger", map[string]any{
		"workflow_id":  "wf-ts",
		"trigger_type": "deal_stage_change",
		"trigger_data": map[string]any{"dealName": "Harbor Point", "userId": "u-7"},
		"watch":        true,
	}))
	require.NoError(t, err)
	var run store.Run
	unmarshalResult(t, res, &run)
	assert.Equal(t, schema.RunStatusRunning, run.Status)
	require.Len(t, run.Results, 1)
	assert.Equal(t, "notify", run.Results[0].ActionID)
	assert.Equal(t, 0, s.sessions.Len(), "no client session in a bare context")

	clock.Advance(61 * time.Minute)
	res, err = s.handleSweep(ctx, buildRequest("lendflow.sweep", nil))
	require.NoError(t, err)
	var summary schema.SweepSummary
	unmarshalResult(t, res, &summary)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Successful)

	res, err = s.handleStatus(ctx, buildRequest("lendflow.status", map[string]any{"run_id": run.ID}))
	require.NoError(t, err)
	var final store.Run
	unmarshalResult(t, res, &final)
	assert.Equal(t, schema.RunStatusCompleted, final.Status)
	require.Len(t, final.Results, 2)
	assert.True(t, final.Results[1].Scheduled)

	res, err = s.handleStatus(ctx, buildRequest("lendflow.status", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleStatus(ctx, buildRequest("lendflow.status", map[string]any{"run_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, extractText(t, res), schema.ErrCodeNotFound)
}

func TestTriggerTool_ActionsOverride(t *testing.T) {
	s, _, _ := newTestServer(t)
	define(t, s, "wf-ts")

	res, err := s.handleTrigger(context.Background(), buildRequest("lendflow.trigger", map[string]any{
		"workflow_id": "wf-ts",
		"actions": []any{
			map[string]any{"id": "field", "type": "update_field", "config": map[string]any{"field": "status"}},
		},
	}))
	require.NoError(t, err)
	var run store.Run
	unmarshalResult(t, res, &run)
	assert.Equal(t, schema.RunStatusFailed, run.Status)
	require.Len(t, run.Results, 1)
	assert.Equal(t, "No dealId in trigger data", run.Results[0].Message)

	res, err = s.handleTrigger(context.Background(), buildRequest("lendflow.trigger", map[string]any{
		"workflow_id": "wf-ts",
		"actions":     []any{map[string]any{"id": "x", "type": "send_fax"}},
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, extractText(t, res), "action_type")
}

func TestTriggerTool_EventFanOut(t *testing.T) {
	s, _, _ := newTestServer(t)
	define(t, s, "wf-ts")

	res, err := s.handleTrigger(context.Background(), buildRequest("lendflow.trigger", map[string]any{
		"trigger_type": "deal_stage_change",
		"trigger_data": map[string]any{"toStage": "term_sheet", "fromStage": "loi"},
	}))
	require.NoError(t, err)
	var out struct {
		RunIDs []string `json:"run_ids"`
	}
	unmarshalResult(t, res, &out)
	assert.Len(t, out.RunIDs, 1)

	res, err = s.handleTrigger(context.Background(), buildRequest("lendflow.trigger", map[string]any{
		"trigger_type": "deal_stage_change",
		"trigger_data": map[string]any{"toStage": "closing"},
	}))
	require.NoError(t, err)
	unmarshalResult(t, res, &out)
	assert.Empty(t, out.RunIDs)

	res, err = s.handleTrigger(context.Background(), buildRequest("lendflow.trigger", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestQueryTool(t *testing.T) {
	s, _, _ := newTestServer(t)
	ctx := context.Background()
	define(t, s, "wf-ts")
	_, err := s.handleTrigger(ctx, buildRequest("lendflow.trigger", map[string]any{
		"workflow_id":  "wf-ts",
		"trigger_data": map[string]any{"dealName": "Harbor Point", "userId": "u-7", "dealId": "d-7"},
	}))
	require.NoError(t, err)

	query := func(resource string, filter map[string]any) map[string][]json.RawMessage {
		res, err := s.handleQuery(ctx, buildRequest("lendflow.query", map[string]any{"resource": resource, "filter": filter}))
		require.NoError(t, err)
		var out map[string][]json.RawMessage
		unmarshalResult(t, res, &out)
		return out
	}

	assert.Len(t, query("workflows", map[string]any{"trigger_type": "deal_stage_change", "active": true})["workflows"], 1)
	assert.Len(t, query("workflows", map[string]any{"active": "false"})["workflows"], 0)
	assert.Len(t, query("runs", map[string]any{"workflow_id": "wf-ts"})["runs"], 1)
	assert.Len(t, query("scheduled_actions", map[string]any{"status": "pending"})["scheduled_actions"], 1)
	assert.Len(t, query("notifications", map[string]any{"user_id": "u-7"})["notifications"], 1)
	assert.Len(t, query("notifications", map[string]any{"user_id": "nobody"})["notifications"], 0)

	res, err := s.handleQuery(ctx, buildRequest("lendflow.query", map[string]any{"resource": "deals"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestExtractHelpers(t *testing.T) {
	f := map[string]any{"limit": float64(5), "n": "7", "bad": "x", "yes": true, "no": "false"}
	assert.Equal(t, 5, extractInt(f, "limit", 50))
	assert.Equal(t, 7, extractInt(f, "n", 50))
	assert.Equal(t, 50, extractInt(f, "bad", 50))
	assert.Equal(t, 50, extractInt(nil, "limit", 50))
	assert.True(t, *extractBool(f, "yes"))
	assert.False(t, *extractBool(f, "no"))
	assert.Nil(t, extractBool(f, "missing"))
	assert.Equal(t, "", extractString(nil, "x"))
}

func TestDiagramTool(t *testing.T) {
	s, _, _ := newTestServer(t)
	ctx := context.Background()
	define(t, s, "wf-ts")

	res, err := s.handleTrigger(ctx, buildRequest("lendflow.trigger", map[string]any{
		"workflow_id":  "wf-ts",
		"trigger_data": map[string]any{"dealName": "Harbor Point"},
	}))
	require.NoError(t, err)
	var run store.Run
	unmarshalResult(t, res, &run)

	res, err = s.handleDiagram(ctx, buildRequest("lendflow.diagram", map[string]any{
		"workflow_id": "wf-ts", "run_id": run.ID, "format": "mermaid",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	text := extractText(t, res)
	assert.Contains(t, text, "class action_notify completed")
	assert.Contains(t, text, "class action_nudge scheduled")
	assert.Contains(t, text, `wait_nudge(["wait 1h"])`)

	res, err = s.handleDiagram(ctx, buildRequest("lendflow.diagram", map[string]any{
		"workflow_id": "wf-ts", "format": "ascii",
	}))
	require.NoError(t, err)
	assert.Contains(t, extractText(t, res), "=== Term sheet issued ===")

	res, err = s.handleDiagram(ctx, buildRequest("lendflow.diagram", map[string]any{
		"workflow_id": "wf-ts", "format": "image",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Len(t, res.Content, 2)
	img, ok := mcp.AsImageContent(res.Content[1])
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.NotEmpty(t, img.Data)

	for _, args := range []map[string]any{
		{"format": "ascii"},
		{"workflow_id": "missing", "format": "ascii"},
		{"workflow_id": "wf-ts", "format": "gif"},
		{"workflow_id": "wf-ts", "run_id": "missing", "format": "ascii"},
	} {
		res, err = s.handleDiagram(ctx, buildRequest("lendflow.diagram", args))
		require.NoError(t, err)
		assert.True(t, res.IsError, "%v", args)
	}
}
