package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Club is an organization grouping several teams, provisioned as a side
// effect of a club-scoped membership purchase.
type Club struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	Name      string    `gorm:"type:varchar(200);not null" json:"name" validate:"required,max=200"`
	CreatedBy *uint     `json:"created_by,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Club) TableName() string {
	return "club_organizations"
}

func (c *Club) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == "" {
		c.UUID = uuid.New().String()
	}
	return nil
}
