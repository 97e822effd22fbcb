package actions

import (
	"log/slog"

	"github.com/jonboulle/clockwork"
)

// BuiltinDeps holds the collaborators injected into the built-in actions.
type BuiltinDeps struct {
	Notifications NotificationSink
	Deals         DealUpdater
	Mailer        Mailer
	HTTP          HTTPConfig
	Credentials   CredentialExpander // optional
	Clock         clockwork.Clock
	Logger        *slog.Logger
}

// RegisterBuiltins registers one action per action type and returns the
// trigger_workflow action so the executor can late-bind its runner.
func RegisterBuiltins(reg *Registry, deps BuiltinDeps) (*TriggerWorkflowAction, error) {
	chain := NewTriggerWorkflowAction(nil)
	all := []Action{
		NewSendNotificationAction(deps.Notifications, deps.Clock, deps.Logger),
		NewSendEmailAction(deps.Mailer, deps.Logger),
		NewWebhookAction(deps.HTTP, deps.Clock).WithCredentials(deps.Credentials),
		NewUpdateFieldAction(deps.Deals, deps.Clock, deps.Logger),
		chain,
	}
	for _, a := range all {
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}
	return chain, nil
}
