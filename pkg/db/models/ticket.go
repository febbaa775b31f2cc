package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/loudlane/cabinet-backend/pkg/enums"
)

// Ticket is a sublabel support request. CreatedBy is immutable and must
// reference an existing user at creation time; AssignedTo, when set, must
// reference an admin. UpdatedAt drives the stale-event guard in the sync
// layer and must never move backwards from a client's point of view.
type Ticket struct {
	ID          uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Title       string               `gorm:"type:text;not null"`
	Description string               `gorm:"type:text;not null"`
	Status      enums.TicketStatus   `gorm:"type:ticket_status;not null;default:'open'"`
	Priority    enums.TicketPriority `gorm:"type:ticket_priority;not null;default:'medium'"`
	CreatedBy   uuid.UUID            `gorm:"column:created_by;type:uuid;not null"`
	AssignedTo  *uuid.UUID           `gorm:"column:assigned_to;type:uuid"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
