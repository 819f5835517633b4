package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Analysis is the immutable record of one billed valuation run.
type Analysis struct {
	ID     string `gorm:"type:varchar(36);primaryKey"`     // UUID primary key.
	UserID string `gorm:"type:varchar(36);not null;index"` // Owning user.

	PropertyID *string `gorm:"type:varchar(36);index"` // Linked property, nil for inline data.

	IdempotencyKey *string `gorm:"type:varchar(255)"` // Client retry key, unique per user when set.

	AIOutput datatypes.JSON `gorm:"not null"` // Full engine output.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}

// TableName pins the analyses table name.
func (Analysis) TableName() string { return "analyses" }

// BeforeCreate assigns a UUID when the caller did not.
func (a *Analysis) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
