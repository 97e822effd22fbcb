package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rendis/lendflow/pkg/schema"
)

// TestDealID is the deal id used by rule previews; updates against it succeed
// without touching any record.
const TestDealID = "test-deal-id"

// DealUpdater mutates a single field on a deal record.
type DealUpdater interface {
	UpdateDealField(ctx context.Context, dealID, field string, value any, now time.Time) error
}

// UpdateFieldAction implements the "update_field" action.
type UpdateFieldAction struct {
	deals  DealUpdater
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewUpdateFieldAction creates an update_field action.
func NewUpdateFieldAction(deals DealUpdater, clock clockwork.Clock, logger *slog.Logger) *UpdateFieldAction {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UpdateFieldAction{deals: deals, clock: clock, logger: logger}
}

func (a *UpdateFieldAction) Type() schema.ActionType { return schema.ActionUpdateField }

func (a *UpdateFieldAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	cfg, err := configAs[*schema.UpdateFieldConfig](input)
	if err != nil {
		return nil, err
	}
	if cfg.Field == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "No field specified")
	}

	dealID := dataString(input.TriggerData, schema.KeyDealID)
	if dealID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "No dealId in trigger data")
	}
	if dealID == TestDealID {
		a.logger.InfoContext(ctx, "skipping field update for test deal", "field", cfg.Field)
		return &ActionOutput{Message: fmt.Sprintf("Test mode: would update %s", cfg.Field)}, nil
	}
	if a.deals == nil {
		return nil, schema.NewError(schema.ErrCodeActionUnavailable, "deal store not configured")
	}

	if err := a.deals.UpdateDealField(ctx, dealID, cfg.Field, cfg.Value, a.clock.Now()); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "Failed to update field: %s", schema.Message(err)).WithCause(err)
	}
	return &ActionOutput{Message: fmt.Sprintf("Updated %s on deal %s", cfg.Field, dealID)}, nil
}
