package actions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/pkg/schema"
)

type memorySink struct {
	created []*store.Notification
	err     error
}

func (m *memorySink) CreateNotification(_ context.Context, n *store.Notification) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, n)
	return nil
}

func TestSendNotification_Persists(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	sink := &memorySink{}
	action := NewSendNotificationAction(sink, clockwork.NewFakeClockAt(now), nil)

	out, err := action.Execute(context.Background(), ActionInput{
		ActionID:    "n1",
		Config:      &schema.NotificationConfig{Title: "Stage changed", Message: "Oak St is in closing"},
		TriggerData: map[string]any{"userId": "u-1", "dealId": "d-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Notification sent to u-1", out.Message)

	require.Len(t, sink.created, 1)
	n := sink.created[0]
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "u-1", n.UserID)
	assert.Equal(t, "d-1", n.DealID)
	assert.Equal(t, WorkflowAlertType, n.AlertType)
	assert.Equal(t, "Stage changed", n.Title)
	assert.Equal(t, "Oak St is in closing", n.Message)
	assert.Equal(t, now, n.CreatedAt)
}

func TestSendNotification_NoRecipientSucceeds(t *testing.T) {
	sink := &memorySink{}
	out, err := NewSendNotificationAction(sink, nil, nil).Execute(context.Background(), ActionInput{
		ActionID: "n1",
		Config:   &schema.NotificationConfig{Title: "t"},
	})
	require.NoError(t, err)
	assert.Contains(t, out.Message, "no recipient")
	assert.Empty(t, sink.created)
}

func TestSendNotification_SinkError(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	_, err := NewSendNotificationAction(sink, nil, nil).Execute(context.Background(), ActionInput{
		Config:      &schema.NotificationConfig{},
		TriggerData: map[string]any{"userId": "u-1"},
	})
	require.Error(t, err)
	assert.Contains(t, schema.Message(err), "disk full")
}
