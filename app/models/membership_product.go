package models

import "time"

// Provisioning behaviors triggered when a mapped product is purchased.
const (
	CreateBehaviorNone = "none"
	CreateBehaviorTeam = "create_team"
	CreateBehaviorClub = "create_club"
)

// Product scopes controlling which memberships a cancellation unlinks.
const (
	ProductScopeTeam    = "team"
	ProductScopeClub    = "club"
	ProductScopeAccount = "account"
)

// MembershipProduct maps an external provider membership id to an internal
// entitlement key plus provisioning behavior. Read-only from the queue's
// perspective; rows are maintained by platform admins.
type MembershipProduct struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	WPMembershipID  int64     `gorm:"column:wp_membership_id;not null;uniqueIndex:ux_membership_products_wp_id" json:"wp_membership_id"`
	Name            string    `gorm:"type:varchar(150);not null;default:''" json:"name"`
	EntitlementKey  string    `gorm:"type:varchar(100);not null;index" json:"entitlement_key"`
	CreateBehavior  string    `gorm:"type:varchar(20);not null;default:'none'" json:"create_behavior" validate:"oneof=none create_team create_club"`
	Scope           string    `gorm:"type:varchar(20);not null;default:'account'" json:"scope" validate:"oneof=team club account"`
	IsActive        bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MembershipProduct) TableName() string {
	return "membership_products"
}
