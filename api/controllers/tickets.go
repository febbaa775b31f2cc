package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/loudlane/cabinet-backend/api/responses"
	"github.com/loudlane/cabinet-backend/api/validators"
	"github.com/loudlane/cabinet-backend/internal/access"
	"github.com/loudlane/cabinet-backend/internal/backend"
	"github.com/loudlane/cabinet-backend/internal/fanout"
	"github.com/loudlane/cabinet-backend/pkg/db/models"
	"github.com/loudlane/cabinet-backend/pkg/enums"
	pkgerrors "github.com/loudlane/cabinet-backend/pkg/errors"
	"github.com/loudlane/cabinet-backend/pkg/logger"
)

type createTicketRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=200"`
	Description string `json:"description" validate:"required,max=5000"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high"`
}

type updateTicketRequest struct {
	Status     *string `json:"status" validate:"omitempty,oneof=open in_progress closed"`
	Priority   *string `json:"priority" validate:"omitempty,oneof=low medium high"`
	AssignedTo *string `json:"assignedTo" validate:"omitempty,uuid"`
}

// ListTickets returns the tickets the caller may see, newest first.
func ListTickets(reader SyncReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, err := viewerFromContext(r.Context(), reader)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reader.TicketsFor(viewer))
	}
}

// GetTicket returns one ticket if the caller may see it.
func GetTicket(reader SyncReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, err := viewerFromContext(r.Context(), reader)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "ticketID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid ticket id"))
			return
		}
		ticket, err := reader.TicketFor(viewer, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ticket)
	}
}

// CreateTicket files a new ticket for the caller and mails the admins.
// Mail failures are logged, not surfaced: the ticket write already
// committed and the change feed will mirror it regardless.
func CreateTicket(data backend.DataService, reader SyncReader, mail *fanout.Fanout, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		viewer, err := viewerFromContext(ctx, reader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req createTicketRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		priority := enums.TicketPriorityMedium
		if req.Priority != "" {
			parsed, err := enums.ParseTicketPriority(req.Priority)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid priority"))
				return
			}
			priority = parsed
		}

		ticket := models.Ticket{
			Title:       validators.SanitizeString(req.Title, 200),
			Description: validators.SanitizeString(req.Description, 5000),
			Status:      enums.TicketStatusOpen,
			Priority:    priority,
			CreatedBy:   viewer.ID,
		}
		if err := data.InsertTicket(ctx, &ticket); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if mail != nil {
			if err := mail.TicketCreated(ctx, directory{reader}, viewer, ticket); err != nil {
				logg.Error(logg.WithTicketID(ctx, ticket.ID.String()), "ticket creation fan-out incomplete", err)
			}
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, ticket)
	}
}

// UpdateTicket applies an admin triage patch: status, priority, assignment.
func UpdateTicket(data backend.DataService, reader SyncReader, mail *fanout.Fanout, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		viewer, err := viewerFromContext(ctx, reader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "ticketID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid ticket id"))
			return
		}

		var req updateTicketRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if req.Status == nil && req.Priority == nil && req.AssignedTo == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "patch must change at least one field"))
			return
		}

		if !access.CanMutateTicket(viewer) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "only admins triage tickets"))
			return
		}

		patch := backend.TicketPatch{}
		var statusChanged bool
		if req.Status != nil {
			status, err := enums.ParseTicketStatus(*req.Status)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			patch.Status = &status
			statusChanged = true
		}
		if req.Priority != nil {
			priority, err := enums.ParseTicketPriority(*req.Priority)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid priority"))
				return
			}
			patch.Priority = &priority
		}
		if req.AssignedTo != nil {
			assignee, err := uuid.Parse(*req.AssignedTo)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid assignee id"))
				return
			}
			patch.AssignedTo = &assignee
		}

		updated, err := data.UpdateTicket(ctx, id, patch)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if mail != nil && statusChanged {
			if err := mail.TicketStatusChanged(ctx, directory{reader}, *updated); err != nil {
				logg.Error(logg.WithTicketID(ctx, updated.ID.String()), "status change fan-out incomplete", err)
			}
		}

		responses.WriteSuccess(w, updated)
	}
}

// directory adapts the sync reader to the fan-out recipient lookup.
type directory struct {
	reader SyncReader
}

func (d directory) Admins() []models.User {
	return d.reader.Admins()
}

func (d directory) UserByID(id uuid.UUID) (models.User, bool) {
	return d.reader.UserByID(id)
}
