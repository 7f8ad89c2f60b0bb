package models

import (
	"time"

	"gorm.io/datatypes"
)

// Entitlement statuses. History is preserved by status transition, never by
// row deletion.
const (
	EntitlementStatusActive   = "active"
	EntitlementStatusCanceled = "canceled"
	EntitlementStatusExpired  = "expired"
)

// MembershipEntitlement grants a user access to a product feature set. The
// (user_id, entitlement_key) pair is unique and doubles as the provisioning
// dedup key: teams/clubs are only created when the row is first inserted.
type MembershipEntitlement struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UserID         uint           `gorm:"not null;uniqueIndex:ux_membership_entitlements_user_key,priority:1" json:"user_id"`
	EntitlementKey string         `gorm:"type:varchar(100);not null;uniqueIndex:ux_membership_entitlements_user_key,priority:2;index" json:"entitlement_key"`
	Status         string         `gorm:"type:varchar(20);not null;default:'active';index" json:"status" validate:"oneof=active canceled expired"`
	Source         string         `gorm:"type:varchar(50);not null;default:'memberpress'" json:"source"`
	Metadata       datatypes.JSON `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MembershipEntitlement) TableName() string {
	return "membership_entitlements"
}

// IsActive reports whether the entitlement currently grants access.
func (e *MembershipEntitlement) IsActive() bool {
	return e.Status == EntitlementStatusActive
}
