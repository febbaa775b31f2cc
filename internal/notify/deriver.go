package notify

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/loudlane/cabinet-backend/internal/store"
	"github.com/loudlane/cabinet-backend/pkg/db/models"
	"github.com/loudlane/cabinet-backend/pkg/enums"
)

// Notification is derived view-state: recomputed from the entity mirror on
// every pass, never persisted remotely. IDs are deterministic so the same
// underlying event always yields the same id, which is what the read-state
// overlay keys on.
type Notification struct {
	ID          string                 `json:"id"`
	Type        enums.NotificationType `json:"type"`
	TicketID    uuid.UUID              `json:"ticketId"`
	TicketTitle string                 `json:"ticketTitle"`
	Content     string                 `json:"content"`
	CreatedAt   time.Time              `json:"createdAt"`
	Read        bool                   `json:"read"`
}

// ratingMarker matches the reserved message prefix that records a creator's
// rating of a closed ticket.
var ratingMarker = regexp.MustCompile(`^RATING:\s*\d`)

// HasRatingMarker reports whether the content carries the rating convention.
func HasRatingMarker(content string) bool {
	return ratingMarker.MatchString(content)
}

// MessageID, TicketID, StatusID and RatingID build the deterministic
// notification ids.
func MessageID(messageID uuid.UUID) string {
	return "message:" + messageID.String()
}

func TicketID(ticketID uuid.UUID) string {
	return "ticket:" + ticketID.String()
}

func StatusID(ticketID uuid.UUID, status enums.TicketStatus) string {
	return fmt.Sprintf("status:%s:%s", ticketID, status)
}

func RatingID(ticketID uuid.UUID) string {
	return "rating:" + ticketID.String()
}

// Derive recomputes the viewer's notification list from the entity mirror
// and overlays the read flags. Pure: no I/O, safe to call on every render
// of the list.
//
// Sublabel viewers are told about their own tickets: messages from others,
// status movement, and a rating prompt once a ticket closes without a
// rating message from them. Admin viewers are told about everything others
// do: new tickets and new messages.
func Derive(viewer models.User, s *store.Store, readState map[string]bool) []Notification {
	var out []Notification
	switch viewer.Role {
	case enums.RoleAdmin:
		out = deriveForAdmin(viewer, s)
	default:
		out = deriveForSublabel(viewer, s)
	}

	for i := range out {
		out[i].Read = readState[out[i].ID]
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func deriveForAdmin(viewer models.User, s *store.Store) []Notification {
	var out []Notification
	for _, ticket := range s.Tickets() {
		// Self-created tickets are not announced, but their threads
		// still carry foreign messages worth surfacing.
		if ticket.CreatedBy != viewer.ID {
			out = append(out, Notification{
				ID:          TicketID(ticket.ID),
				Type:        enums.NotificationTypeNewTicket,
				TicketID:    ticket.ID,
				TicketTitle: ticket.Title,
				Content:     fmt.Sprintf("Новая заявка: «%s»", ticket.Title),
				CreatedAt:   ticket.CreatedAt,
			})
		}
		for _, message := range s.MessagesForTicket(ticket.ID) {
			if message.UserID == viewer.ID {
				continue
			}
			out = append(out, Notification{
				ID:          MessageID(message.ID),
				Type:        enums.NotificationTypeNewMessage,
				TicketID:    ticket.ID,
				TicketTitle: ticket.Title,
				Content:     fmt.Sprintf("Новое сообщение по заявке «%s»", ticket.Title),
				CreatedAt:   message.CreatedAt,
			})
		}
	}
	return out
}

func deriveForSublabel(viewer models.User, s *store.Store) []Notification {
	var out []Notification
	for _, ticket := range s.Tickets() {
		if ticket.CreatedBy != viewer.ID {
			continue
		}

		var rated bool
		for _, message := range s.MessagesForTicket(ticket.ID) {
			if message.UserID == viewer.ID {
				if HasRatingMarker(message.Content) {
					rated = true
				}
				continue
			}
			out = append(out, Notification{
				ID:          MessageID(message.ID),
				Type:        enums.NotificationTypeNewMessage,
				TicketID:    ticket.ID,
				TicketTitle: ticket.Title,
				Content:     fmt.Sprintf("Новое сообщение по заявке «%s»", ticket.Title),
				CreatedAt:   message.CreatedAt,
			})
		}

		// A freshly created ticket has not moved yet; anything else
		// has a status worth announcing.
		if ticket.Status != enums.TicketStatusOpen {
			out = append(out, Notification{
				ID:          StatusID(ticket.ID, ticket.Status),
				Type:        enums.NotificationTypeStatusChange,
				TicketID:    ticket.ID,
				TicketTitle: ticket.Title,
				Content:     fmt.Sprintf("Статус заявки «%s» изменён: %s", ticket.Title, ticket.Status.Label()),
				CreatedAt:   ticket.UpdatedAt,
			})
		}

		if ticket.Status == enums.TicketStatusClosed && !rated {
			out = append(out, Notification{
				ID:          RatingID(ticket.ID),
				Type:        enums.NotificationTypeRatingRequest,
				TicketID:    ticket.ID,
				TicketTitle: ticket.Title,
				Content:     fmt.Sprintf("Оцените решение по заявке «%s»", ticket.Title),
				CreatedAt:   ticket.UpdatedAt,
			})
		}
	}
	return out
}
