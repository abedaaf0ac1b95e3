package notify

import (
	"context"
	"net/mail"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/mailer"
)

// AppMailer sends through the mail settings configured in PocketBase (SMTP or
// sendmail).
type AppMailer struct {
	app core.App
}

func NewAppMailer(app core.App) *AppMailer {
	return &AppMailer{app: app}
}

func (m *AppMailer) Send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	meta := m.app.Settings().Meta
	message := &mailer.Message{
		From: mail.Address{
			Address: meta.SenderAddress,
			Name:    meta.SenderName,
		},
		To:      []mail.Address{{Address: to}},
		Subject: subject,
		HTML:    html,
	}
	return m.app.NewMailClient().Send(message)
}
