package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rendis/lendflow/internal/logging"
	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/internal/validation"
	"github.com/rendis/lendflow/pkg/schema"
)

// DefineOptions controls Catalog.Define.
type DefineOptions struct {
	ID      string // empty = generated
	Active  bool
	Replace bool // overwrite an existing workflow with the same ID
}

// Catalog is the write path for workflow definitions shared by the API,
// the MCP tools and the import command.
type Catalog struct {
	store     store.Store
	validator *validation.WorkflowValidator
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewCatalog creates a Catalog.
func NewCatalog(s store.Store, v *validation.WorkflowValidator, clock clockwork.Clock, logger *slog.Logger) *Catalog {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{store: s, validator: v, clock: clock, logger: logging.WithModule(logger, "catalog")}
}

// Define validates def and stores it. The returned result carries warnings
// even on success; on validation failure the error is its ToError form.
func (c *Catalog) Define(ctx context.Context, def *schema.WorkflowDefinition, opts DefineOptions) (*store.Workflow, *validation.Result, error) {
	result := c.validator.Validate(ctx, def)
	if !result.Valid() {
		return nil, result, result.ToError()
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := c.clock.Now()

	existing, err := c.store.GetWorkflow(ctx, id)
	switch {
	case err == nil && !opts.Replace:
		return nil, result, schema.NewErrorf(schema.ErrCodeConflict, "workflow %q already exists", id)
	case err == nil:
		active := opts.Active
		if err := c.store.UpdateWorkflow(ctx, id, store.WorkflowUpdate{Definition: def, Active: &active, UpdatedAt: now}); err != nil {
			return nil, result, storeError(err, "update workflow %s", id)
		}
		existing.WorkflowDefinition = *def
		existing.Active = active
		existing.UpdatedAt = now
		c.warnCycles(ctx, existing, result)
		c.logger.Info("workflow replaced", slog.String("workflow_id", id))
		return existing, result, nil
	case !schema.IsCode(err, schema.ErrCodeNotFound):
		return nil, result, storeError(err, "load workflow %s", id)
	}

	wf := &store.Workflow{
		ID:                 id,
		WorkflowDefinition: *def,
		Active:             opts.Active,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := c.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, result, storeError(err, "create workflow %s", id)
	}
	c.warnCycles(ctx, wf, result)
	c.logger.Info("workflow defined",
		slog.String("workflow_id", id),
		slog.String("trigger_type", string(def.TriggerType)),
		slog.Bool("active", opts.Active),
	)
	return wf, result, nil
}

// SetActive toggles whether a workflow may run.
func (c *Catalog) SetActive(ctx context.Context, id string, active bool) (*store.Workflow, error) {
	if err := c.store.UpdateWorkflow(ctx, id, store.WorkflowUpdate{Active: &active, UpdatedAt: c.clock.Now()}); err != nil {
		return nil, storeError(err, "update workflow %s", id)
	}
	wf, err := c.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, storeError(err, "load workflow %s", id)
	}
	return wf, nil
}

// Get loads one workflow.
func (c *Catalog) Get(ctx context.Context, id string) (*store.Workflow, error) {
	wf, err := c.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, storeError(err, "load workflow %s", id)
	}
	return wf, nil
}

// List returns stored workflows.
func (c *Catalog) List(ctx context.Context, filter store.WorkflowFilter) ([]*store.Workflow, error) {
	wfs, err := c.store.ListWorkflows(ctx, filter)
	if err != nil {
		return nil, storeError(err, "list workflows")
	}
	return wfs, nil
}

// warnCycles adds a warning when wf sits on a trigger_workflow cycle.
// Cycle detection is advisory, so store errors are only logged.
func (c *Catalog) warnCycles(ctx context.Context, wf *store.Workflow, result *validation.Result) {
	if len(validation.ChainTargets(&wf.WorkflowDefinition)) == 0 {
		return
	}
	all, err := c.store.ListWorkflows(ctx, store.WorkflowFilter{})
	if err != nil {
		c.logger.Warn("chain cycle check skipped", slog.String("error", err.Error()))
		return
	}
	defs := make(map[string]*schema.WorkflowDefinition, len(all))
	for _, other := range all {
		defs[other.ID] = &other.WorkflowDefinition
	}
	defs[wf.ID] = &wf.WorkflowDefinition
	for _, id := range validation.ChainCycles(defs) {
		if id == wf.ID {
			result.AddWarning("actions", schema.ErrCodeChainDepth,
				fmt.Sprintf("workflow is part of a trigger_workflow cycle; runs stop at chain depth %d", schema.MaxChainDepth))
			return
		}
	}
}
