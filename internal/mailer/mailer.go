package mailer

import (
	"context"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/loudlane/cabinet-backend/pkg/config"
	"github.com/loudlane/cabinet-backend/pkg/errors"
	"github.com/loudlane/cabinet-backend/pkg/logger"
)

// Correlation ties an outbound email back to the portal records it is
// about. Fields are optional and end up in logs, not in the message.
type Correlation struct {
	TicketID     string
	MessageID    string
	UserID       string
	TicketStatus string
}

// Email is one outbound delivery.
type Email struct {
	To          string
	Subject     string
	HTMLBody    string
	Correlation Correlation
}

// Mailer delivers portal emails. Implementations are called once per
// recipient with no retry; the caller decides what a failure means.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// SendgridMailer delivers through the Sendgrid v3 API.
type SendgridMailer struct {
	client *sendgrid.Client
	from   string
}

func NewSendgrid(cfg config.SendgridConfig) *SendgridMailer {
	return &SendgridMailer{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   cfg.DefaultFrom,
	}
}

func (m *SendgridMailer) Send(ctx context.Context, email Email) error {
	if email.To == "" {
		return errors.New(errors.CodeValidation, "email recipient is required")
	}
	message := mail.NewSingleEmail(
		mail.NewEmail("", m.from),
		email.Subject,
		mail.NewEmail("", email.To),
		"",
		email.HTMLBody,
	)
	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return errors.Wrap(errors.CodeDependency, err, "sendgrid delivery failed")
	}
	if resp.StatusCode >= 400 {
		return errors.New(errors.CodeDependency, "sendgrid rejected the message").
			WithDetails(map[string]any{"status": resp.StatusCode, "body": resp.Body})
	}
	return nil
}

// LogMailer logs instead of sending. Used in dev and whenever no Sendgrid
// key is configured.
type LogMailer struct {
	logg *logger.Logger
}

func NewLogMailer(logg *logger.Logger) *LogMailer {
	return &LogMailer{logg: logg}
}

func (m *LogMailer) Send(ctx context.Context, email Email) error {
	ctx = m.logg.WithFields(ctx, map[string]any{
		"to":      email.To,
		"subject": email.Subject,
		"ticket":  email.Correlation.TicketID,
	})
	m.logg.Info(ctx, "mail delivery skipped, no sendgrid key configured")
	return nil
}

// FromConfig picks the Sendgrid client when a key is present and the log
// fallback otherwise.
func FromConfig(cfg config.SendgridConfig, logg *logger.Logger) Mailer {
	if cfg.APIKey == "" {
		return NewLogMailer(logg)
	}
	return NewSendgrid(cfg)
}
