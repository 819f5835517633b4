package models

import "time"

// PlanFree is the plan written on billing rows created without a purchase.
const PlanFree = "free"

// Billing holds the credit balance of a single user.
type Billing struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID string `gorm:"type:varchar(36);not null;uniqueIndex"`    // Owning user, at most one row per user.
	Plan   string `gorm:"type:varchar(64);not null;default:'free'"` // Plan name.

	Credits int `gorm:"not null;default:0;check:credits >= 0"` // Remaining analysis credits.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName pins the billing table name.
func (Billing) TableName() string { return "billing" }
