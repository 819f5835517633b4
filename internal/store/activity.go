package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/estateiq/estateiq/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GormActivityStore appends and reads analytics log entries.
type GormActivityStore struct {
	db *gorm.DB
}

// NewGormActivityStore constructs a GormActivityStore.
func NewGormActivityStore(db *gorm.DB) *GormActivityStore {
	return &GormActivityStore{db: db}
}

// WithTx returns a store bound to tx.
func (s *GormActivityStore) WithTx(tx *gorm.DB) *GormActivityStore {
	return &GormActivityStore{db: tx}
}

// Append records one action. Entries are never updated or deleted.
func (s *GormActivityStore) Append(ctx context.Context, userID, action string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if strings.TrimSpace(userID) == "" || action == "" {
		return fmt.Errorf("activity store: append: missing user or action")
	}
	var payload []byte
	if len(metadata) > 0 {
		encoded, errMarshal := json.Marshal(metadata)
		if errMarshal != nil {
			return fmt.Errorf("activity store: marshal metadata: %w", errMarshal)
		}
		payload = encoded
	}
	row := models.AnalyticsLog{
		UserID:   userID,
		Action:   action,
		Metadata: datatypes.JSON(payload),
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("activity store: append: %w", errCreate)
	}
	return nil
}

// List returns the user's log entries, newest first, optionally filtered by action.
func (s *GormActivityStore) List(ctx context.Context, userID, action string, limit int) ([]models.AnalyticsLog, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if action = strings.TrimSpace(action); action != "" {
		q = q.Where("action = ?", action)
	}
	var rows []models.AnalyticsLog
	if errFind := q.Order("created_at DESC, id DESC").Limit(ClampLimit(limit)).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("activity store: list: %w", errFind)
	}
	return rows, nil
}
