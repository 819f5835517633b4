package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Upload records a document stored in the object store.
type Upload struct {
	ID     string `gorm:"type:varchar(36);primaryKey"`     // UUID primary key.
	UserID string `gorm:"type:varchar(36);not null;index"` // Owning user.

	FileURL  string `gorm:"type:text;not null"`         // Object key inside the uploads bucket.
	FileName string `gorm:"type:text;not null"`         // Original client file name.
	FileType string `gorm:"type:varchar(255);not null"` // MIME type.
	Size     int64  `gorm:"not null;default:0"`         // Size in bytes.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}

// TableName pins the uploads table name.
func (Upload) TableName() string { return "uploads" }

// BeforeCreate assigns a UUID when the caller did not.
func (u *Upload) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
