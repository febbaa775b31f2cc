package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/loudlane/cabinet-backend/pkg/enums"
)

// User represents a portal account: either a label administrator or a
// sublabel partner. Accounts are created by the registration flow and are
// read-only to the sync core.
type User struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email       string     `gorm:"type:text;not null;uniqueIndex"`
	DisplayName string     `gorm:"column:display_name;type:text;not null"`
	Role        enums.Role `gorm:"type:user_role;not null"`
	AvatarURL   *string    `gorm:"column:avatar_url;type:text"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
