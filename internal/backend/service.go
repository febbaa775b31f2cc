package backend

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/loudlane/cabinet-backend/pkg/db/models"
	"github.com/loudlane/cabinet-backend/pkg/enums"
)

// Table identifies a mirrored backend table.
type Table string

const (
	TableUsers    Table = "users"
	TableTickets  Table = "tickets"
	TableMessages Table = "messages"
)

// Tables lists every mirrored table in bootstrap order.
func Tables() []Table {
	return []Table{TableUsers, TableTickets, TableMessages}
}

// ChangeEvent is one row-level change delivered by the feed. Before carries
// the previous row for update/delete events when the transport knows it;
// After carries the resulting row for insert/update events.
type ChangeEvent struct {
	Table  Table
	Op     enums.ChangeOp
	Before json.RawMessage
	After  json.RawMessage
}

// TicketPatch is a partial ticket update. Nil fields are left untouched.
type TicketPatch struct {
	Status     *enums.TicketStatus
	Priority   *enums.TicketPriority
	AssignedTo *uuid.UUID
}

// DataService is the CRUD surface of the backend data store: bulk reads for
// bootstrap plus the write operations the portal performs. Authorization is
// enforced here (and in the database row policies), not in the sync core.
type DataService interface {
	Users(ctx context.Context) ([]models.User, error)
	Tickets(ctx context.Context) ([]models.Ticket, error)
	Messages(ctx context.Context) ([]models.Message, error)

	InsertTicket(ctx context.Context, ticket *models.Ticket) error
	UpdateTicket(ctx context.Context, id uuid.UUID, patch TicketPatch) (*models.Ticket, error)
	InsertMessage(ctx context.Context, message *models.Message) error
}

// Subscription is one live change-feed stream. Cancel detaches the stream
// and must not return until no further events will be delivered.
type Subscription interface {
	Cancel() error
}

// ChangeFeed delivers row-level change events for one table at a time.
// Events for the same table arrive in delivery order; cross-table ordering
// is not guaranteed.
type ChangeFeed interface {
	Subscribe(ctx context.Context, table Table, handler func(ChangeEvent)) (Subscription, error)
}

// eventEnvelope is the stable wire format published to the changes topic.
type eventEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Table      Table           `json:"table"`
	Op         enums.ChangeOp  `json:"op"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}

const envelopeVersion = 1
