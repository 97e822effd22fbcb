package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/pkg/schema"
)

// WorkflowAlertType tags notifications created by workflow actions.
const WorkflowAlertType = "workflow"

// NotificationSink persists in-app notifications.
type NotificationSink interface {
	CreateNotification(ctx context.Context, n *store.Notification) error
}

// SendNotificationAction implements the "send_notification" action.
type SendNotificationAction struct {
	sink   NotificationSink
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewSendNotificationAction creates a send_notification action.
func NewSendNotificationAction(sink NotificationSink, clock clockwork.Clock, logger *slog.Logger) *SendNotificationAction {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SendNotificationAction{sink: sink, clock: clock, logger: logger}
}

func (a *SendNotificationAction) Type() schema.ActionType { return schema.ActionSendNotification }

func (a *SendNotificationAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	cfg, err := configAs[*schema.NotificationConfig](input)
	if err != nil {
		return nil, err
	}

	userID := dataString(input.TriggerData, schema.KeyUserID)
	if userID == "" {
		// No recipient is not a failure.
		a.logger.InfoContext(ctx, "notification has no recipient",
			"action_id", input.ActionID, "title", cfg.Title, "message", cfg.Message)
		return &ActionOutput{Message: "Notification logged (no recipient)"}, nil
	}
	if a.sink == nil {
		return nil, schema.NewError(schema.ErrCodeActionUnavailable, "notification sink not configured")
	}

	n := &store.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		DealID:    dataString(input.TriggerData, schema.KeyDealID),
		AlertType: WorkflowAlertType,
		Title:     cfg.Title,
		Message:   cfg.Message,
		CreatedAt: a.clock.Now(),
	}
	if err := a.sink.CreateNotification(ctx, n); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "Failed to create notification: %s", schema.Message(err)).WithCause(err)
	}
	return &ActionOutput{Message: fmt.Sprintf("Notification sent to %s", userID)}, nil
}
