package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is a timestamped text entry on a ticket. TicketID, UserID and
// CreatedAt are immutable; edits replace Content in place. Content carries a
// reserved side-band convention: a body starting with "RATING:" followed by a
// digit records the creator's rating of a closed ticket.
type Message struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TicketID  uuid.UUID `gorm:"column:ticket_id;type:uuid;not null;index"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
