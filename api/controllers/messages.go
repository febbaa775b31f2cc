package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/loudlane/cabinet-backend/api/responses"
	"github.com/loudlane/cabinet-backend/api/validators"
	"github.com/loudlane/cabinet-backend/internal/backend"
	"github.com/loudlane/cabinet-backend/internal/fanout"
	"github.com/loudlane/cabinet-backend/pkg/db/models"
	pkgerrors "github.com/loudlane/cabinet-backend/pkg/errors"
	"github.com/loudlane/cabinet-backend/pkg/logger"
)

type createMessageRequest struct {
	Content string `json:"content" validate:"required,max=5000"`
}

// ListMessages returns the ticket's thread, oldest first.
func ListMessages(reader SyncReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, err := viewerFromContext(r.Context(), reader)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ticketID, err := uuid.Parse(chi.URLParam(r, "ticketID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid ticket id"))
			return
		}
		messages, err := reader.MessagesFor(viewer, ticketID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, messages)
	}
}

// CreateMessage appends to a ticket's thread and mails the other side.
func CreateMessage(data backend.DataService, reader SyncReader, mail *fanout.Fanout, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		viewer, err := viewerFromContext(ctx, reader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ticketID, err := uuid.Parse(chi.URLParam(r, "ticketID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid ticket id"))
			return
		}

		ticket, err := reader.TicketFor(viewer, ticketID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req createMessageRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		message := models.Message{
			TicketID: ticket.ID,
			UserID:   viewer.ID,
			Content:  validators.SanitizeString(req.Content, 5000),
		}
		if err := data.InsertMessage(ctx, &message); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if mail != nil {
			if err := mail.MessageCreated(ctx, directory{reader}, viewer, ticket, message); err != nil {
				logg.Error(logg.WithTicketID(ctx, ticket.ID.String()), "message fan-out incomplete", err)
			}
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, message)
	}
}
