package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Property is a real-estate asset owned by exactly one user.
type Property struct {
	ID     string `gorm:"type:varchar(36);primaryKey"`     // UUID primary key.
	UserID string `gorm:"type:varchar(36);not null;index"` // Owning user.

	Address   string   `gorm:"type:text;not null"` // Free-form street address.
	Latitude  *float64 // Geocoded latitude.
	Longitude *float64 // Geocoded longitude.

	Price *float64 // Listing or purchase price.
	Beds  *int     // Bedroom count.
	Baths *float64 // Bathroom count.
	Sqft  *int     // Living area in square feet.

	PreviousValuation *float64 // Prior valuation used by the last analysis.
	LastValuation     *float64 // Estimate produced by the last analysis.
	AppreciationRate  *float64 // Percent change between the two valuations.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName pins the properties table name.
func (Property) TableName() string { return "properties" }

// BeforeCreate assigns a UUID when the caller did not.
func (p *Property) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
