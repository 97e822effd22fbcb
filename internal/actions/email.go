package actions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rendis/lendflow/pkg/schema"
)

// Email is one transactional message handed to a Mailer.
type Email struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Mailer delivers transactional email.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// MailerConfig points HTTPMailer at a mail dispatch API.
type MailerConfig struct {
	APIURL string
	APIKey string
	From   string
}

// HTTPMailer POSTs {from, to[], subject, html} to a mail dispatch API with a
// bearer key.
type HTTPMailer struct {
	cfg  MailerConfig
	http HTTPConfig
}

// NewHTTPMailer creates an HTTPMailer.
func NewHTTPMailer(cfg MailerConfig, httpCfg HTTPConfig) *HTTPMailer {
	return &HTTPMailer{cfg: cfg, http: httpCfg.withDefaults()}
}

func (m *HTTPMailer) Send(ctx context.Context, email Email) error {
	if m.cfg.APIURL == "" {
		return schema.NewError(schema.ErrCodeActionUnavailable, "Email API not configured")
	}
	if email.From == "" {
		email.From = m.cfg.From
	}

	headers := map[string]string{}
	if m.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + m.cfg.APIKey
	}

	resp, err := postJSON(ctx, m.http, m.cfg.APIURL, headers, email)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return schema.NewErrorf(schema.ErrCodeExecution, "Email API returned status %d", resp.StatusCode).
			WithDetails(map[string]any{"status_code": resp.StatusCode})
	}
	return nil
}

// SendEmailAction implements the "send_email" action.
type SendEmailAction struct {
	mailer Mailer
	logger *slog.Logger
}

// NewSendEmailAction creates a send_email action backed by mailer.
func NewSendEmailAction(mailer Mailer, logger *slog.Logger) *SendEmailAction {
	if logger == nil {
		logger = slog.Default()
	}
	return &SendEmailAction{mailer: mailer, logger: logger}
}

func (a *SendEmailAction) Type() schema.ActionType { return schema.ActionSendEmail }

func (a *SendEmailAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	cfg, err := configAs[*schema.EmailConfig](input)
	if err != nil {
		return nil, err
	}

	to := strings.TrimSpace(cfg.To)
	if to == "" {
		to = strings.TrimSpace(dataString(input.TriggerData, schema.KeyUserEmail))
	}
	if to == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "No email recipient configured")
	}
	if a.mailer == nil {
		return nil, schema.NewError(schema.ErrCodeActionUnavailable, "Email API not configured")
	}

	if err := a.mailer.Send(ctx, Email{
		To:      []string{to},
		Subject: cfg.Subject,
		HTML:    cfg.Body,
	}); err != nil {
		return nil, err
	}

	a.logger.DebugContext(ctx, "email sent", "to", to, "subject", cfg.Subject)
	return &ActionOutput{Message: fmt.Sprintf("Email sent to %s", to)}, nil
}
