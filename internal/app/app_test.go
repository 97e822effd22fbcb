package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/lendflow/internal/engine"
	"github.com/rendis/lendflow/internal/secrets"
	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/pkg/schema"
)

func TestNew_WiresChainingEndToEnd(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	a, err := New(ctx, Config{DBPath: "file:" + filepath.Join(t.TempDir(), "app.db"), Clock: clock})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.ElementsMatch(t, schema.ActionTypes, a.Registry.List())

	_, _, err = a.Catalog.Define(ctx, &schema.WorkflowDefinition{
		Name:        "Follow-up",
		TriggerType: schema.TriggerChained,
		Actions: []schema.ActionDefinition{{
			ID: "note", Type: schema.ActionSendNotification,
			Config: json.RawMessage(`{"title":"Chained from {{chainedFrom}}"}`),
		}},
	}, engine.DefineOptions{ID: "wf-target", Active: true})
	require.NoError(t, err)

	_, _, err = a.Catalog.Define(ctx, &schema.WorkflowDefinition{
		Name:          "Closing",
		TriggerType:   schema.TriggerDealStageChange,
		TriggerConfig: map[string]any{"toStage": "closing"},
		Actions: []schema.ActionDefinition{{
			ID: "chain", Type: schema.ActionTriggerWorkflow,
			Config: json.RawMessage(`{"workflowId":"wf-target"}`),
		}},
	}, engine.DefineOptions{ID: "wf-source", Active: true})
	require.NoError(t, err)

	runIDs, err := a.Executor.HandleEvent(ctx, schema.TriggerEvent{
		TriggerType: schema.TriggerDealStageChange,
		Data:        map[string]any{"toStage": "closing", "dealId": "deal-1"},
	})
	require.NoError(t, err)
	require.Len(t, runIDs, 1)

	run, err := a.Ledger.Get(ctx, runIDs[0])
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, run.Status)
	require.Len(t, run.Results, 1)
	assert.True(t, run.Results[0].Success)

	chained, err := a.Store.ListRuns(ctx, store.RunFilter{WorkflowID: "wf-target"})
	require.NoError(t, err)
	require.Len(t, chained, 1)
	assert.Equal(t, 1, chained[0].ChainDepth)
	assert.Equal(t, runIDs[0], chained[0].ParentRunID)
}

func TestNew_BadPath(t *testing.T) {
	_, err := New(context.Background(), Config{DBPath: "file:" + filepath.Join(t.TempDir(), "missing", "dir", "app.db")})
	assert.Error(t, err)
}

func TestNew_WebhookResolvesVaultCredentials(t *testing.T) {
	ctx := context.Background()
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a, err := New(ctx, Config{
		DBPath: "file:" + filepath.Join(t.TempDir(), "vault.db"),
		Vault:  secrets.VaultConfig{Passphrase: "test", Salt: []byte("lendflow"), Iterations: 1000},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NotNil(t, a.Vault)
	require.NoError(t, a.Vault.Put(ctx, "crm_token", "sk-live"))

	_, _, err = a.Catalog.Define(ctx, &schema.WorkflowDefinition{
		Name:        "CRM sync",
		TriggerType: schema.TriggerDealClosed,
		Actions: []schema.ActionDefinition{{
			ID: "crm", Type: schema.ActionWebhook,
			Config: json.RawMessage(`{"url":"` + srv.URL + `","headers":{"Authorization":"Bearer ${{secrets.crm_token}}"}}`),
		}},
	}, engine.DefineOptions{ID: "wf-crm", Active: true})
	require.NoError(t, err)

	runID, err := a.Executor.Execute(ctx, schema.TriggerRequest{WorkflowID: "wf-crm"})
	require.NoError(t, err)
	run, err := a.Ledger.Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, run.Status)
	assert.Equal(t, "Bearer sk-live", auth)
}

func TestNew_VaultDisabledWithoutKey(t *testing.T) {
	a, err := New(context.Background(), Config{DBPath: "file:" + filepath.Join(t.TempDir(), "novault.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	assert.Nil(t, a.Vault)
}
