// Package tracing wraps the global OpenTelemetry tracer for engine spans.
// Exporter wiring belongs to the host process; without it spans are no-ops.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every engine span.
const TracerName = "github.com/rendis/lendflow"

// Common attribute keys.
const (
	WorkflowIDKey  = "lendflow.workflow.id"
	RunIDKey       = "lendflow.run.id"
	ActionIDKey    = "lendflow.action.id"
	ActionTypeKey  = "lendflow.action.type"
	TriggerTypeKey = "lendflow.trigger.type"
	ChainDepthKey  = "lendflow.chain.depth"
	ProcessedKey   = "lendflow.sweep.processed"
	SuccessKey     = "lendflow.success"
)

// Tracer returns the engine tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan starts a span named name under ctx.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// SetError marks span as failed with err.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if len(attrs) > 0 {
		span.AddEvent("error_occurred", trace.WithAttributes(attrs...))
	}
}
