package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/estateiq/estateiq/internal/models"
	"gorm.io/gorm"
)

// GormAnalysisStore persists immutable analysis records.
type GormAnalysisStore struct {
	db *gorm.DB
}

// NewGormAnalysisStore constructs a GormAnalysisStore.
func NewGormAnalysisStore(db *gorm.DB) *GormAnalysisStore {
	return &GormAnalysisStore{db: db}
}

// WithTx returns a store bound to tx.
func (s *GormAnalysisStore) WithTx(tx *gorm.DB) *GormAnalysisStore {
	return &GormAnalysisStore{db: tx}
}

// Create inserts an analysis. Analyses are never updated afterwards.
func (s *GormAnalysisStore) Create(ctx context.Context, row *models.Analysis) error {
	if errCreate := s.db.WithContext(ctx).Create(row).Error; errCreate != nil {
		return fmt.Errorf("analysis store: create: %w", errCreate)
	}
	return nil
}

// FindByIdempotencyKey loads the analysis a user stored under key.
func (s *GormAnalysisStore) FindByIdempotencyKey(ctx context.Context, userID, key string) (models.Analysis, error) {
	var row models.Analysis
	errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Analysis{}, ErrNotFound
		}
		return models.Analysis{}, fmt.Errorf("analysis store: find by key: %w", errFind)
	}
	return row, nil
}

// List returns the user's analyses, newest first, optionally filtered by property.
func (s *GormAnalysisStore) List(ctx context.Context, userID, propertyID string, limit int) ([]models.Analysis, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if propertyID != "" {
		q = q.Where("property_id = ?", propertyID)
	}
	var rows []models.Analysis
	if errFind := q.Order("created_at DESC").Limit(ClampLimit(limit)).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("analysis store: list: %w", errFind)
	}
	return rows, nil
}

// Count returns how many analyses the user owns.
func (s *GormAnalysisStore) Count(ctx context.Context, userID string) (int64, error) {
	var count int64
	if errCount := s.db.WithContext(ctx).
		Model(&models.Analysis{}).
		Where("user_id = ?", userID).
		Count(&count).Error; errCount != nil {
		return 0, fmt.Errorf("analysis store: count: %w", errCount)
	}
	return count, nil
}
