package access

import (
	"github.com/loudlane/cabinet-backend/pkg/db/models"
	"github.com/loudlane/cabinet-backend/pkg/enums"
)

// CanAccessTicket reports whether the viewer may see the ticket and
// everything hanging off it. Admins see every ticket; sublabel partners see
// only the tickets they created. Assignment grants nothing on its own: an
// assignee who is not an admin still has no access.
func CanAccessTicket(viewer models.User, ticket models.Ticket) bool {
	if viewer.Role == enums.RoleAdmin {
		return true
	}
	return ticket.CreatedBy == viewer.ID
}

// CanMutateTicket reports whether the viewer may change ticket fields.
// Only admins triage: status, priority and assignment are theirs. A creator
// closes the loop through messages (including the rating convention), not
// through field edits.
func CanMutateTicket(viewer models.User) bool {
	return viewer.Role == enums.RoleAdmin
}

// CanPostMessage reports whether the viewer may add a message to the
// ticket's thread. Anyone who can see a ticket can write on it.
func CanPostMessage(viewer models.User, ticket models.Ticket) bool {
	return CanAccessTicket(viewer, ticket)
}
