package store

import (
	"context"
	"fmt"

	"github.com/estateiq/estateiq/internal/models"
	"gorm.io/gorm"
)

// RecentUploadsLimit is the default size of the recent uploads list.
const RecentUploadsLimit = 5

// GormUploadStore persists upload metadata.
type GormUploadStore struct {
	db *gorm.DB
}

// NewGormUploadStore constructs a GormUploadStore.
func NewGormUploadStore(db *gorm.DB) *GormUploadStore {
	return &GormUploadStore{db: db}
}

// Create inserts an upload row.
func (s *GormUploadStore) Create(ctx context.Context, row *models.Upload) error {
	if errCreate := s.db.WithContext(ctx).Create(row).Error; errCreate != nil {
		return fmt.Errorf("upload store: create: %w", errCreate)
	}
	return nil
}

// ListRecent returns the user's latest uploads.
func (s *GormUploadStore) ListRecent(ctx context.Context, userID string, limit int) ([]models.Upload, error) {
	if limit <= 0 {
		limit = RecentUploadsLimit
	}
	var rows []models.Upload
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(ClampLimit(limit)).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("upload store: list: %w", errFind)
	}
	return rows, nil
}
