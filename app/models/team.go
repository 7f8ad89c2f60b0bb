package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Team membership statuses. Cancellations soft-unlink members by flipping the
// status to inactive; rows are kept for history and reporting.
const (
	TeamMemberStatusActive   = "active"
	TeamMemberStatusInactive = "inactive"
)

// Team member roles assigned on registration-link redemption.
const (
	TeamRolePlayer = "player"
	TeamRoleParent = "parent"
	TeamRoleCoach  = "coach"
)

// Team is a roster provisioned either manually or as a side effect of a
// team-scoped membership purchase. ClubID is nil for standalone teams.
type Team struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	ClubID    *uint     `gorm:"index" json:"club_id,omitempty"`
	Name      string    `gorm:"type:varchar(200);not null" json:"name" validate:"required,max=200"`
	CreatedBy *uint     `json:"created_by,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Team) TableName() string {
	return "team_teams"
}

// BeforeCreate assigns a public UUID when none was set.
func (t *Team) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == "" {
		t.UUID = uuid.New().String()
	}
	return nil
}

// TeamMember links a user to a team with a role and soft-unlink status.
type TeamMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TeamID    uint      `gorm:"not null;uniqueIndex:ux_team_members_team_user,priority:1" json:"team_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:ux_team_members_team_user,priority:2;index" json:"user_id"`
	Role      string    `gorm:"type:varchar(20);not null;default:'player'" json:"role" validate:"oneof=player parent coach"`
	Status    string    `gorm:"type:varchar(20);not null;default:'active';index" json:"status" validate:"oneof=active inactive"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TeamMember) TableName() string {
	return "team_members"
}
