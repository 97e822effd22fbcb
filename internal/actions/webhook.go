package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rendis/lendflow/pkg/schema"
)

// WebhookEvent is the fixed event name carried by every webhook envelope.
const WebhookEvent = "delayed_workflow_action"

// WebhookEnvelope is the JSON body POSTed to webhook targets.
type WebhookEnvelope struct {
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// CredentialExpander replaces ${{secrets.NAME}} references with stored values.
type CredentialExpander interface {
	Expand(ctx context.Context, text string) (string, error)
}

// WebhookAction implements the "webhook" action.
type WebhookAction struct {
	config      HTTPConfig
	clock       clockwork.Clock
	credentials CredentialExpander
}

// NewWebhookAction creates a webhook action. A nil clock uses the real clock.
func NewWebhookAction(cfg HTTPConfig, clock clockwork.Clock) *WebhookAction {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WebhookAction{config: cfg.withDefaults(), clock: clock}
}

// WithCredentials lets the URL and header values reference stored credentials.
func (a *WebhookAction) WithCredentials(c CredentialExpander) *WebhookAction {
	a.credentials = c
	return a
}

func (a *WebhookAction) Type() schema.ActionType { return schema.ActionWebhook }

func (a *WebhookAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	cfg, err := configAs[*schema.WebhookConfig](input)
	if err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "No webhook URL configured")
	}

	data := input.TriggerData
	if data == nil {
		data = map[string]any{}
	}
	envelope := WebhookEnvelope{
		Event:     WebhookEvent,
		Timestamp: a.clock.Now().UTC().Format(time.RFC3339Nano),
		Data:      data,
	}

	url, headers, err := a.expand(ctx, cfg)
	if err != nil {
		return nil, err
	}
	resp, err := postJSON(ctx, a.config, url, headers, envelope)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "Webhook returned status %d", resp.StatusCode).
			WithDetails(map[string]any{"status_code": resp.StatusCode, "url": cfg.URL})
	}
	return &ActionOutput{Message: fmt.Sprintf("Webhook delivered to %s", cfg.URL)}, nil
}

// expand resolves credential references. The configured URL is kept for
// messages so secret values never reach results or logs.
func (a *WebhookAction) expand(ctx context.Context, cfg *schema.WebhookConfig) (string, map[string]string, error) {
	if a.credentials == nil {
		return cfg.URL, cfg.Headers, nil
	}
	url, err := a.credentials.Expand(ctx, cfg.URL)
	if err != nil {
		return "", nil, err
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		if headers[k], err = a.credentials.Expand(ctx, v); err != nil {
			return "", nil, err
		}
	}
	return url, headers, nil
}
