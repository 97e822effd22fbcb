package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/lendflow/internal/expressions"
	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/internal/validation"
	"github.com/rendis/lendflow/pkg/schema"
)

func newCatalog(t *testing.T, h *harness) *Catalog {
	t.Helper()
	conds, err := expressions.NewConditionEvaluator()
	require.NoError(t, err)
	v, err := validation.NewWorkflowValidator(h.registry, conds)
	require.NoError(t, err)
	return NewCatalog(h.store, v, h.clock, nil)
}

func chainDefinition(t *testing.T, target string) *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		Name:        "chain to " + target,
		TriggerType: schema.TriggerChained,
		Actions: []schema.ActionDefinition{
			act(t, "chain", schema.ActionTriggerWorkflow, schema.TriggerWorkflowConfig{WorkflowID: target}, 0),
		},
	}
}

func TestCatalog_DefineCreatesAndGeneratesID(t *testing.T) {
	h := newHarness(t)
	c := newCatalog(t, h)
	ctx := context.Background()

	def := &schema.WorkflowDefinition{
		Name:        "New deal intake",
		TriggerType: schema.TriggerNewDeal,
		Actions: []schema.ActionDefinition{
			act(t, "hello", schema.ActionSendNotification, schema.NotificationConfig{Title: "New deal {{dealName}}"}, 0),
		},
	}
	wf, result, err := c.Define(ctx, def, DefineOptions{Active: true})
	require.NoError(t, err)
	assert.NotEmpty(t, wf.ID)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, t0, wf.CreatedAt)

	stored, err := c.Get(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "New deal intake", stored.Name)
	assert.True(t, stored.Active)
}

func TestCatalog_DefineRejectsInvalid(t *testing.T) {
	h := newHarness(t)
	c := newCatalog(t, h)

	wf, result, err := c.Define(context.Background(), &schema.WorkflowDefinition{
		Name:        "broken",
		TriggerType: schema.TriggerNewDeal,
	}, DefineOptions{ID: "wf-broken"})
	require.Error(t, err)
	assert.Nil(t, wf)
	assert.False(t, result.Valid())
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = c.Get(context.Background(), "wf-broken")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestCatalog_DefineConflictAndReplace(t *testing.T) {
	h := newHarness(t)
	c := newCatalog(t, h)
	ctx := context.Background()

	_, _, err := c.Define(ctx, chainDefinition(t, "wf-x"), DefineOptions{ID: "wf-a", Active: true})
	require.NoError(t, err)

	_, _, err = c.Define(ctx, chainDefinition(t, "wf-y"), DefineOptions{ID: "wf-a", Active: true})
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))

	h.clock.Advance(time.Minute)
	wf, _, err := c.Define(ctx, chainDefinition(t, "wf-y"), DefineOptions{ID: "wf-a", Active: false, Replace: true})
	require.NoError(t, err)
	assert.False(t, wf.Active)
	assert.Equal(t, t0.Add(time.Minute), wf.UpdatedAt)

	stored, err := c.Get(ctx, "wf-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-y"}, validation.ChainTargets(&stored.WorkflowDefinition))
	assert.False(t, stored.Active)
}

func TestCatalog_WarnsOnChainCycle(t *testing.T) {
	h := newHarness(t)
	c := newCatalog(t, h)
	ctx := context.Background()

	_, result, err := c.Define(ctx, chainDefinition(t, "wf-b"), DefineOptions{ID: "wf-a", Active: true})
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)

	_, result, err = c.Define(ctx, chainDefinition(t, "wf-a"), DefineOptions{ID: "wf-b", Active: true})
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, schema.ErrCodeChainDepth, result.Warnings[0].Code)
}

func TestCatalog_SetActiveAndList(t *testing.T) {
	h := newHarness(t)
	c := newCatalog(t, h)
	ctx := context.Background()

	_, _, err := c.Define(ctx, chainDefinition(t, "wf-x"), DefineOptions{ID: "wf-a", Active: true})
	require.NoError(t, err)

	wf, err := c.SetActive(ctx, "wf-a", false)
	require.NoError(t, err)
	assert.False(t, wf.Active)

	inactive := false
	wfs, err := c.List(ctx, store.WorkflowFilter{Active: &inactive})
	require.NoError(t, err)
	assert.Len(t, wfs, 1)

	_, err = c.SetActive(ctx, "missing", true)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}
