package diagram

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/pkg/schema"
)

func overlayRun() *store.Run {
	return &store.Run{
		Status: schema.RunStatusRunning,
		Results: []schema.ActionResult{
			{ActionID: "notify", Success: true},
			{ActionID: "handoff", Success: false, Message: "Target workflow is inactive"},
		},
	}
}

func TestRenderMermaid(t *testing.T) {
	out := RenderMermaid(Build(termSheetWorkflow(), overlayRun()))

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "%% Term sheet issued")
	assert.Contains(t, out, `__trigger__{{"deal_stage_change [toStage=term_sheet]"}}`)
	assert.Contains(t, out, `wait_nudge(["wait 1d"])`)
	assert.Contains(t, out, `workflow_wf_closing[["workflow wf-closing"]]`)
	assert.Contains(t, out, "action_handoff -->|chains| workflow_wf_closing")
	assert.Contains(t, out, "class action_notify completed")
	assert.Contains(t, out, "class action_handoff failed")
	assert.Contains(t, out, "class action_nudge scheduled")
}

func TestMermaidEscapesQuotes(t *testing.T) {
	node := &Node{ID: "x", Label: `say "hi"`, Kind: NodeKindAction}
	assert.Equal(t, `x["say #quot;hi#quot;"]`, mermaidNodeDef(node))
}

func TestRenderASCII(t *testing.T) {
	out := RenderASCII(Build(termSheetWorkflow(), overlayRun()))

	assert.Contains(t, out, "=== Term sheet issued ===")
	assert.Contains(t, out, "│ notify (send_notification) │")
	assert.Contains(t, out, "[OK]")
	assert.Contains(t, out, "[FAIL]")
	assert.Contains(t, out, "Target workflow is inactive")
	assert.Contains(t, out, "[PEND]")
	assert.Contains(t, out, "handoff (trigger_workflow) ─chains→ workflow wf-closing")
	assert.Less(t, strings.Index(out, "Start"), strings.Index(out, "End"))
}

func TestRenderImage(t *testing.T) {
	model := Build(termSheetWorkflow(), overlayRun())

	png, err := RenderImage(context.Background(), model, ImagePNG)
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])

	svg, err := RenderImage(context.Background(), model, ImageSVG)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
	assert.Equal(t, "image/svg+xml", ImageSVG.MIMEType())
	assert.Equal(t, "image/png", ImagePNG.MIMEType())
}
