package controllers

import (
	"net/http"

	"github.com/loudlane/cabinet-backend/api/responses"
	"github.com/loudlane/cabinet-backend/api/validators"
	"github.com/loudlane/cabinet-backend/pkg/logger"
)

type markReadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=200,dive,required"`
}

// ListNotifications derives the caller's notification list.
func ListNotifications(reader SyncReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		viewer, err := viewerFromContext(ctx, reader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		notifications, err := reader.Notifications(ctx, viewer)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, notifications)
	}
}

// MarkNotificationsRead flags the given notification ids as read for the
// caller. Unknown ids are persisted anyway: the list is derived, so an id
// may refer to a notification the caller's mirror has not produced yet.
func MarkNotificationsRead(reader SyncReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		viewer, err := viewerFromContext(ctx, reader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req markReadRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := reader.MarkNotificationsRead(ctx, viewer, req.IDs...); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"marked": len(req.IDs)})
	}
}
