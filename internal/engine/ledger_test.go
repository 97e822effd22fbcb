package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/lendflow/internal/streaming"
	"github.com/rendis/lendflow/pkg/schema"
)

func TestLedger_AppendDoesNotDeduplicate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := h.activeWorkflow(t)

	runID, err := h.ledger.CreateRun(ctx, wf.ID, RunOptions{ExpectedActions: 1})
	require.NoError(t, err)

	status, err := h.ledger.Status(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusRunning, status)

	result := schema.ActionResult{ActionID: "a", ActionType: schema.ActionWebhook, Success: true}
	require.NoError(t, h.ledger.AppendResult(ctx, runID, result))
	require.NoError(t, h.ledger.AppendResult(ctx, runID, result))

	run, err := h.ledger.Reconcile(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, run.Status)

	run = h.run(t, runID)
	require.Len(t, run.Results, 2)
	assert.Equal(t, t0, run.Results[0].RecordedAt.UTC())
}

func TestLedger_CompletedAtSetOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := h.activeWorkflow(t)

	runID, err := h.ledger.CreateRun(ctx, wf.ID, RunOptions{ExpectedActions: 1})
	require.NoError(t, err)
	require.NoError(t, h.ledger.AppendResult(ctx, runID, schema.ActionResult{ActionID: "a", Success: true}))
	first, err := h.ledger.Reconcile(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, first.CompletedAt)

	h.clock.Advance(time.Hour)
	require.NoError(t, h.ledger.AppendResult(ctx, runID, schema.ActionResult{ActionID: "a", Success: false}))
	second, err := h.ledger.Reconcile(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusPartial, second.Status)
	assert.True(t, first.CompletedAt.Equal(*second.CompletedAt))
}

func TestLedger_RunFinishedPublishedOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := h.activeWorkflow(t)

	runID, err := h.ledger.CreateRun(ctx, wf.ID, RunOptions{ExpectedActions: 1})
	require.NoError(t, err)
	ch, cancel, err := h.hub.Subscribe(ctx, streaming.EventFilter{RunID: runID})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, h.ledger.AppendResult(ctx, runID, schema.ActionResult{ActionID: "a", Success: true}))
	// The fake clock does not move, so both reconciles share one instant.
	_, err = h.ledger.Reconcile(ctx, runID)
	require.NoError(t, err)
	_, err = h.ledger.Reconcile(ctx, runID)
	require.NoError(t, err)

	finished := 0
	for done := false; !done; {
		select {
		case e := <-ch:
			if e.EventType == schema.EventRunFinished {
				finished++
			}
		default:
			done = true
		}
	}
	assert.Equal(t, 1, finished)
}

func TestLedger_MissingRun(t *testing.T) {
	h := newHarness(t)
	_, err := h.ledger.Get(context.Background(), "nope")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}
