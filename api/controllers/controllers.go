package controllers

import (
	"context"

	"github.com/google/uuid"

	"github.com/loudlane/cabinet-backend/api/middleware"
	"github.com/loudlane/cabinet-backend/internal/notify"
	"github.com/loudlane/cabinet-backend/pkg/db/models"
	pkgerrors "github.com/loudlane/cabinet-backend/pkg/errors"
)

// SyncReader is the read surface controllers take from the sync session:
// the mirrored entities filtered for a viewer, plus the derived
// notification list.
type SyncReader interface {
	UserByID(id uuid.UUID) (models.User, bool)
	Admins() []models.User
	TicketsFor(viewer models.User) []models.Ticket
	TicketFor(viewer models.User, id uuid.UUID) (models.Ticket, error)
	MessagesFor(viewer models.User, ticketID uuid.UUID) ([]models.Message, error)
	Notifications(ctx context.Context, viewer models.User) ([]notify.Notification, error)
	MarkNotificationsRead(ctx context.Context, viewer models.User, ids ...string) error
}

// viewerFromContext resolves the authenticated user's mirrored record. The
// token is already verified by the auth middleware; an unknown id here
// means the users bootstrap has not caught up with the account yet.
func viewerFromContext(ctx context.Context, reader SyncReader) (models.User, error) {
	raw := middleware.UserIDFromContext(ctx)
	if raw == "" {
		return models.User{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return models.User{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	viewer, ok := reader.UserByID(id)
	if !ok {
		return models.User{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "account not yet synchronized")
	}
	return viewer, nil
}
