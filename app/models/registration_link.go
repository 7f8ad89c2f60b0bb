package models

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// Registration link targets.
const (
	RegistrationTargetTeam = "team"
	RegistrationTargetClub = "club"
)

// Default per-role use limits applied when a team is provisioned.
const (
	PlayerLinkMaxUses = 25
	ParentLinkMaxUses = 75
)

// RegistrationLink is a shareable invite carrying a high-entropy token. Each
// redemption decrements the remaining uses via UsedCount.
type RegistrationLink struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Token       string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"-"`
	TargetType  string    `gorm:"type:varchar(20);not null" json:"target_type" validate:"oneof=team club"`
	TargetID    uint      `gorm:"not null;index" json:"target_id"`
	DefaultRole string    `gorm:"type:varchar(20);not null;default:'player'" json:"default_role" validate:"oneof=player parent coach"`
	MaxUses     int       `gorm:"not null;default:0" json:"max_uses"`
	UsedCount   int       `gorm:"not null;default:0" json:"used_count"`
	CreatedBy   *uint     `json:"created_by,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RegistrationLink) TableName() string {
	return "registration_links"
}

// RemainingUses returns how many redemptions are left.
func (l *RegistrationLink) RemainingUses() int {
	remaining := l.MaxUses - l.UsedCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GenerateRegistrationToken returns a 32-byte random token in URL-safe
// base64 without padding.
func GenerateRegistrationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
