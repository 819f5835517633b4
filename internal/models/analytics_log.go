package models

import (
	"time"

	"gorm.io/datatypes"
)

// Analytics log actions.
const (
	ActionAIAnalyze       = "ai_analyze"
	ActionAIAnalyzeFailed = "ai_analyze_failed"
	ActionPropertyCreate  = "property_create"
	ActionUpload          = "upload"
	ActionCreditsTopUp    = "credits_top_up"
)

// AnalyticsLog is an append-only audit entry.
type AnalyticsLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID string `gorm:"type:varchar(36);not null;index"` // Acting user.
	Action string `gorm:"type:varchar(64);not null;index"` // Action name.

	Metadata datatypes.JSON // Action-specific details.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName pins the analytics_logs table name.
func (AnalyticsLog) TableName() string { return "analytics_logs" }
