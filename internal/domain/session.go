package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Session struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	SessionToken  string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	UserID        string     `gorm:"size:36;index;not null" json:"user_id"`
	IsRevoked     bool       `gorm:"index;not null" json:"is_revoked"`
	RevokedAt     *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	RevokedReason *string    `gorm:"size:64" json:"revoked_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (s *Session) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
