package schema

import (
	"bytes"
	"encoding/json"
)

// ActionType enumerates the effects an action can perform.
type ActionType string

const (
	ActionSendNotification ActionType = "send_notification"
	ActionSendEmail        ActionType = "send_email"
	ActionWebhook          ActionType = "webhook"
	ActionUpdateField      ActionType = "update_field"
	ActionTriggerWorkflow  ActionType = "trigger_workflow"
)

// ActionTypes lists every supported action type in a stable order.
var ActionTypes = []ActionType{
	ActionSendNotification,
	ActionSendEmail,
	ActionWebhook,
	ActionUpdateField,
	ActionTriggerWorkflow,
}

// ActionConfig is the decoded, type-specific configuration of an action.
// Exactly one concrete type exists per ActionType.
type ActionConfig interface {
	ActionType() ActionType
}

// NotificationConfig configures send_notification.
type NotificationConfig struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// EmailConfig configures send_email. To falls back to triggerData.userEmail.
type EmailConfig struct {
	To      string `json:"to,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// WebhookConfig configures webhook.
type WebhookConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// UpdateFieldConfig configures update_field. Value may be any JSON value;
// string values may carry placeholders.
type UpdateFieldConfig struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// TriggerWorkflowConfig configures trigger_workflow.
type TriggerWorkflowConfig struct {
	WorkflowID string `json:"workflowId"`
}

func (*NotificationConfig) ActionType() ActionType    { return ActionSendNotification }
func (*EmailConfig) ActionType() ActionType           { return ActionSendEmail }
func (*WebhookConfig) ActionType() ActionType         { return ActionWebhook }
func (*UpdateFieldConfig) ActionType() ActionType     { return ActionUpdateField }
func (*TriggerWorkflowConfig) ActionType() ActionType { return ActionTriggerWorkflow }

// Decode parses the raw config into the concrete type selected by a.Type.
// Missing fields decode to zero values; reporting them is left to the action.
func (a ActionDefinition) Decode() (ActionConfig, error) {
	var cfg ActionConfig
	switch a.Type {
	case ActionSendNotification:
		cfg = &NotificationConfig{}
	case ActionSendEmail:
		cfg = &EmailConfig{}
	case ActionWebhook:
		cfg = &WebhookConfig{}
	case ActionUpdateField:
		cfg = &UpdateFieldConfig{}
	case ActionTriggerWorkflow:
		cfg = &TriggerWorkflowConfig{}
	default:
		return nil, NewErrorf(ErrCodeValidation, "Unknown action type: %s", a.Type).WithAction(a.ID)
	}

	raw := bytes.TrimSpace(a.Config)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, NewErrorf(ErrCodeValidation, "Invalid %s config: %s", a.Type, err.Error()).
			WithAction(a.ID).
			WithCause(err)
	}
	return cfg, nil
}

// EncodeConfig marshals cfg into a definition's raw config.
func EncodeConfig(cfg ActionConfig) (json.RawMessage, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, NewError(ErrCodeValidation, "failed to encode action config").WithCause(err)
	}
	return b, nil
}
