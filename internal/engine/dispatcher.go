package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rendis/lendflow/internal/actions"
	"github.com/rendis/lendflow/internal/expressions"
	"github.com/rendis/lendflow/internal/logging"
	"github.com/rendis/lendflow/internal/metrics"
	"github.com/rendis/lendflow/internal/tracing"
	"github.com/rendis/lendflow/pkg/schema"
)

// DefaultActionTimeout bounds one dispatch when no timeout is configured.
const DefaultActionTimeout = 30 * time.Second

// DispatcherConfig holds configuration for the dispatcher.
type DispatcherConfig struct {
	ActionTimeout time.Duration
	Clock         clockwork.Clock
	Logger        *slog.Logger
}

// Dispatcher performs exactly one action and reports its outcome.
type Dispatcher struct {
	registry actions.ActionRegistry
	timeout  time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher over the given action registry.
func NewDispatcher(registry actions.ActionRegistry, cfg DispatcherConfig) *Dispatcher {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		timeout:  cfg.ActionTimeout,
		clock:    cfg.Clock,
		logger:   logging.WithModule(cfg.Logger, "dispatcher"),
	}
}

// Dispatch decodes action, substitutes templates from triggerData, and runs
// the registered implementation under the action timeout. It never returns an
// error: every failure, including a panic, becomes a failed result.
// The run and workflow ids carried in ctx are forwarded to the action.
func (d *Dispatcher) Dispatch(ctx context.Context, action schema.ActionDefinition, triggerData map[string]any) schema.ActionResult {
	ctx = logging.WithActionID(ctx, action.ID)
	ctx, span := tracing.StartSpan(ctx, "dispatch",
		attribute.String(tracing.ActionIDKey, action.ID),
		attribute.String(tracing.ActionTypeKey, string(action.Type)),
		attribute.String(tracing.RunIDKey, logging.RunID(ctx)),
	)
	defer span.End()

	start := time.Now()
	result := schema.ActionResult{ActionID: action.ID, ActionType: action.Type}

	out, err := d.execute(ctx, action, triggerData)
	if err != nil {
		result.Message = schema.Message(err)
		tracing.SetError(span, err)
		logging.LogWith(ctx, d.logger).WarnContext(ctx, "action failed",
			"action_type", action.Type, "error", err)
	} else {
		result.Success = true
		if out != nil {
			result.Message = out.Message
		}
		logging.LogWith(ctx, d.logger).DebugContext(ctx, "action succeeded",
			"action_type", action.Type, "message", result.Message)
	}

	result.RecordedAt = d.clock.Now()
	span.SetAttributes(attribute.Bool(tracing.SuccessKey, result.Success))
	metrics.RecordDispatch(action.Type, result.Success, time.Since(start))
	return result
}

type execOutcome struct {
	out *actions.ActionOutput
	err error
}

func (d *Dispatcher) execute(ctx context.Context, action schema.ActionDefinition, triggerData map[string]any) (*actions.ActionOutput, error) {
	cfg, err := action.Decode()
	if err != nil {
		return nil, err
	}
	cfg, err = resolveTemplates(cfg, triggerData)
	if err != nil {
		return nil, err
	}
	impl, err := d.registry.Get(action.Type)
	if err != nil {
		return nil, err
	}

	input := actions.ActionInput{
		ActionID:    action.ID,
		RunID:       logging.RunID(ctx),
		WorkflowID:  logging.WorkflowID(ctx),
		Config:      cfg,
		TriggerData: triggerData,
	}

	execCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan execOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- execOutcome{err: schema.NewErrorf(schema.ErrCodeExecution, "Action panicked: %v", r).WithAction(action.ID)}
			}
		}()
		out, err := impl.Execute(execCtx, input)
		done <- execOutcome{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExecution, "Action cancelled: %v", ctx.Err()).WithCause(ctx.Err())
		}
		return nil, schema.NewErrorf(schema.ErrCodeTimeout, "Action timed out after %s", d.timeout)
	}
}

// resolveTemplates returns a copy of cfg whose human-readable fields have had
// {{key}} placeholders substituted from data.
func resolveTemplates(cfg schema.ActionConfig, data map[string]any) (schema.ActionConfig, error) {
	switch c := cfg.(type) {
	case *schema.NotificationConfig:
		out := *c
		out.Title = expressions.Substitute(c.Title, data)
		out.Message = expressions.Substitute(c.Message, data)
		return &out, nil
	case *schema.EmailConfig:
		out := *c
		out.Subject = expressions.Substitute(c.Subject, data)
		out.Body = expressions.Substitute(c.Body, data)
		return &out, nil
	case *schema.UpdateFieldConfig:
		out := *c
		out.Value = expressions.SubstituteValue(c.Value, data)
		return &out, nil
	case *schema.WebhookConfig, *schema.TriggerWorkflowConfig:
		return c, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "Unknown action config %T", cfg)
	}
}

// Describe renders a dispatch outcome for logs and CLI output.
func Describe(r schema.ActionResult) string {
	state := "ok"
	if !r.Success {
		state = "failed"
	}
	return fmt.Sprintf("%s (%s): %s: %s", r.ActionID, r.ActionType, state, r.Message)
}
