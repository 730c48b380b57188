package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
)

const DefaultAlertThreshold = 1000

// ParsePlatform accepts the platform name in any case.
func ParsePlatform(raw string) (Platform, bool) {
	switch Platform(strings.ToLower(strings.TrimSpace(raw))) {
	case PlatformInstagram:
		return PlatformInstagram, true
	case PlatformTwitter:
		return PlatformTwitter, true
	default:
		return "", false
	}
}

type Track struct {
	ID                string    `gorm:"primaryKey;size:36" json:"id"`
	UserID            string    `gorm:"size:36;index;not null" json:"user_id"`
	Platform          Platform  `gorm:"size:32;not null" json:"platform"`
	ProfileUsername   string    `gorm:"size:120;index;not null" json:"profile_username"`
	AlertThreshold    int       `gorm:"not null" json:"alert_threshold"`
	AlertEnabled      bool      `gorm:"index;not null" json:"alert_enabled"`
	LastFollowerCount int       `gorm:"not null" json:"last_follower_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (t *Track) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

type FollowerHistory struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	TrackID       string    `gorm:"size:36;index;not null" json:"track_id"`
	FollowerCount int       `gorm:"not null" json:"follower_count"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

func (FollowerHistory) TableName() string { return "follower_history" }

func (h *FollowerHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return nil
}
