package mailer

import (
	"context"

	users "github.com/goliatone/go-users"
)

// LogMailer writes messages to the logger instead of sending them.
// Used when no SMTP host is configured.
type LogMailer struct {
	Logger users.Logger
}

var _ users.Mailer = LogMailer{}

func (m LogMailer) Send(_ context.Context, template, recipient string, data map[string]any) error {
	m.Logger.Info("mail not sent, no smtp host configured",
		"template", template,
		"recipient", recipient,
		"link", data["link"],
	)
	return nil
}
