package fanout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/loudlane/cabinet-backend/internal/mailer"
	"github.com/loudlane/cabinet-backend/pkg/db/models"
	"github.com/loudlane/cabinet-backend/pkg/enums"
	"github.com/loudlane/cabinet-backend/pkg/logger"
	"github.com/loudlane/cabinet-backend/pkg/metrics"
)

// Directory resolves email recipients from the current user set.
type Directory interface {
	Admins() []models.User
	UserByID(id uuid.UUID) (models.User, bool)
}

// Fanout turns ticket and message writes into outbound emails. One attempt
// per recipient, no retry queue: failures are logged, counted, and returned
// to the acting request, never to the background recipients.
type Fanout struct {
	mailer  mailer.Mailer
	logg    *logger.Logger
	metrics *metrics.SyncMetrics
}

func New(m mailer.Mailer, logg *logger.Logger, sm *metrics.SyncMetrics) *Fanout {
	return &Fanout{mailer: m, logg: logg, metrics: sm}
}

// TicketCreated mails every admin with a known email when a sublabel files
// a ticket. Admin-created tickets fan out to nobody.
func (f *Fanout) TicketCreated(ctx context.Context, dir Directory, actor models.User, ticket models.Ticket) error {
	if actor.Role != enums.RoleSublabel {
		return nil
	}
	var errs error
	for _, admin := range dir.Admins() {
		if admin.Email == "" {
			continue
		}
		errs = multierr.Append(errs, f.deliver(ctx, string(enums.NotificationTypeNewTicket), mailer.Email{
			To:      admin.Email,
			Subject: fmt.Sprintf("Новая заявка: %s", ticket.Title),
			HTMLBody: fmt.Sprintf("<p>%s создал(а) новую заявку «%s».</p><p>%s</p>",
				actor.DisplayName, ticket.Title, ticket.Description),
			Correlation: mailer.Correlation{TicketID: ticket.ID.String(), UserID: admin.ID.String()},
		}))
	}
	return errs
}

// TicketStatusChanged mails the ticket's creator when an admin moves the
// status, provided the creator is a sublabel with a known email.
func (f *Fanout) TicketStatusChanged(ctx context.Context, dir Directory, ticket models.Ticket) error {
	creator, ok := dir.UserByID(ticket.CreatedBy)
	if !ok || creator.Role != enums.RoleSublabel || creator.Email == "" {
		return nil
	}
	return f.deliver(ctx, string(enums.NotificationTypeStatusChange), mailer.Email{
		To:      creator.Email,
		Subject: fmt.Sprintf("Заявка «%s»: статус изменён", ticket.Title),
		HTMLBody: fmt.Sprintf("<p>Статус вашей заявки «%s» изменён: <b>%s</b>.</p>",
			ticket.Title, ticket.Status.Label()),
		Correlation: mailer.Correlation{
			TicketID:     ticket.ID.String(),
			UserID:       creator.ID.String(),
			TicketStatus: ticket.Status.String(),
		},
	})
}

// MessageCreated routes a new message to the other side of the thread: a
// sublabel's message goes to every admin except the author, an admin's
// message goes to the ticket's sublabel creator.
func (f *Fanout) MessageCreated(ctx context.Context, dir Directory, author models.User, ticket models.Ticket, message models.Message) error {
	body := fmt.Sprintf("<p>Новое сообщение по заявке «%s» от %s:</p><p>%s</p>",
		ticket.Title, author.DisplayName, message.Content)

	if author.Role == enums.RoleSublabel {
		var errs error
		for _, admin := range dir.Admins() {
			if admin.ID == author.ID || admin.Email == "" {
				continue
			}
			errs = multierr.Append(errs, f.deliver(ctx, string(enums.NotificationTypeNewMessage), mailer.Email{
				To:       admin.Email,
				Subject:  fmt.Sprintf("Новое сообщение: %s", ticket.Title),
				HTMLBody: body,
				Correlation: mailer.Correlation{
					TicketID:  ticket.ID.String(),
					MessageID: message.ID.String(),
					UserID:    admin.ID.String(),
				},
			}))
		}
		return errs
	}

	creator, ok := dir.UserByID(ticket.CreatedBy)
	if !ok || creator.Role != enums.RoleSublabel || creator.Email == "" || creator.ID == author.ID {
		return nil
	}
	return f.deliver(ctx, string(enums.NotificationTypeNewMessage), mailer.Email{
		To:       creator.Email,
		Subject:  fmt.Sprintf("Новое сообщение: %s", ticket.Title),
		HTMLBody: body,
		Correlation: mailer.Correlation{
			TicketID:  ticket.ID.String(),
			MessageID: message.ID.String(),
			UserID:    creator.ID.String(),
		},
	})
}

func (f *Fanout) deliver(ctx context.Context, kind string, email mailer.Email) error {
	ctx = f.logg.WithFields(ctx, map[string]any{
		"mail_kind": kind,
		"ticket_id": email.Correlation.TicketID,
	})
	if err := f.mailer.Send(ctx, email); err != nil {
		f.metrics.IncMailFailed(kind)
		f.logg.Error(ctx, "mail delivery failed", err)
		return err
	}
	f.metrics.IncMailSent(kind)
	f.logg.Debug(ctx, "mail delivered")
	return nil
}
