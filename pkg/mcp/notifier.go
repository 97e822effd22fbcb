package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/lendflow/internal/streaming"
	"github.com/rendis/lendflow/pkg/schema"
)

// notificationMethod is the MCP method run events are pushed under.
const notificationMethod = "notifications/message"

// sender pushes a notification to one client session.
// Satisfied by *server.MCPServer.
type sender interface {
	SendNotificationToSpecificClient(sessionID, method string, params map[string]any) error
}

// RunNotifier forwards run events to the session watching each run.
type RunNotifier struct {
	sender   sender
	sessions *SessionRegistry
	logger   *slog.Logger
}

// NewRunNotifier creates a notifier that pushes over MCP.
func NewRunNotifier(s sender, sessions *SessionRegistry, logger *slog.Logger) *RunNotifier {
	return &RunNotifier{sender: s, sessions: sessions, logger: logger}
}

// Forward drains events until ctx ends or the channel closes.
func (n *RunNotifier) Forward(ctx context.Context, events <-chan streaming.StreamEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := n.Notify(event); err != nil {
				n.logger.Warn("run event push failed", "run_id", event.RunID, "error", err)
			}
		}
	}
}

// Notify pushes one event to the run's watching session.
// Best-effort: returns nil if nobody watches the run.
func (n *RunNotifier) Notify(event streaming.StreamEvent) error {
	if event.RunID == "" {
		return nil
	}
	sessionID, ok := n.sessions.SessionFor(event.RunID)
	if !ok {
		return nil
	}
	if event.EventType == schema.EventRunFinished {
		n.sessions.Unwatch(event.RunID)
	}

	payload := map[string]any{
		"level":  "info",
		"logger": "lendflow",
		"data": map[string]any{
			"run_id":      event.RunID,
			"workflow_id": event.WorkflowID,
			"action_id":   event.ActionID,
			"event_type":  event.EventType,
			"timestamp":   event.Timestamp,
			"payload":     event.Payload,
		},
	}
	err := n.sender.SendNotificationToSpecificClient(sessionID, notificationMethod, payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session went away between lookup and send.
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}
