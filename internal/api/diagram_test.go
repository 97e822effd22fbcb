package api

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestWorkflowDiagram(t *testing.T) {
	env := newTestEnv(t)
	env.define(t, "wf-uw", notifyDefinition("Underwriting alert"))

	resp := env.do(t, http.MethodGet, "/v1/workflows/wf-uw/diagram", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/vnd.mermaid")
	body := readBody(t, resp)
	assert.Contains(t, body, "graph TD")
	assert.Contains(t, body, `action_notify["notify (send_notification)"]`)
	assert.NotContains(t, body, "class action_notify")

	resp = env.do(t, http.MethodPost, "/v1/triggers", map[string]any{
		"workflowId":  "wf-uw",
		"triggerData": map[string]any{"userId": "u-1", "dealName": "Acme"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	runID := decode[triggerResponse](t, resp).RunID

	resp = env.do(t, http.MethodGet, "/v1/workflows/wf-uw/diagram?format=ascii&runId="+runID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	body = readBody(t, resp)
	assert.Contains(t, body, "=== Underwriting alert ===")
	assert.Contains(t, body, "[OK]")

	resp = env.do(t, http.MethodGet, "/v1/workflows/wf-uw/diagram?format=png", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "\x89PNG", readBody(t, resp)[:4])
}

func TestWorkflowDiagram_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.define(t, "wf-uw", notifyDefinition("Underwriting alert"))
	env.define(t, "wf-other", notifyDefinition("Other"))

	resp := env.do(t, http.MethodPost, "/v1/triggers", map[string]any{"workflowId": "wf-other"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	otherRun := decode[triggerResponse](t, resp).RunID

	resp = env.do(t, http.MethodGet, "/v1/workflows/missing/diagram", nil)
	requireProblem(t, resp, http.StatusNotFound, "not_found")

	resp = env.do(t, http.MethodGet, "/v1/workflows/wf-uw/diagram?runId=missing", nil)
	requireProblem(t, resp, http.StatusNotFound, "not_found")

	resp = env.do(t, http.MethodGet, "/v1/workflows/wf-uw/diagram?runId="+otherRun, nil)
	requireProblem(t, resp, http.StatusBadRequest, "validation_error")

	resp = env.do(t, http.MethodGet, "/v1/workflows/wf-uw/diagram?format=gif", nil)
	requireProblem(t, resp, http.StatusBadRequest, "validation_error")
}
