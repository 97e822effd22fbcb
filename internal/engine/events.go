package engine

import (
	"context"
	"log/slog"

	"github.com/rendis/lendflow/internal/streaming"
)

// publisher forwards engine events to an optional hub. Publish failures are
// logged and never affect the run.
type publisher struct {
	hub    streaming.EventHub
	logger *slog.Logger
}

func (p publisher) publish(ctx context.Context, event streaming.StreamEvent) {
	if p.hub == nil {
		return
	}
	if err := p.hub.Publish(context.WithoutCancel(ctx), event); err != nil {
		p.logger.WarnContext(ctx, "event publish failed", "event_type", event.EventType, "error", err)
	}
}
