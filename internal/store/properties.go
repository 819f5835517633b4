package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/estateiq/estateiq/internal/models"
	"gorm.io/gorm"
)

// PropertyInput carries the user-editable property fields.
type PropertyInput struct {
	Address   string
	Latitude  *float64
	Longitude *float64
	Price     *float64
	Beds      *int
	Baths     *float64
	Sqft      *int
}

// ValuationUpdate is what a completed analysis writes back to its property.
type ValuationUpdate struct {
	PreviousValuation float64
	LastValuation     float64
	AppreciationRate  float64
}

// GormPropertyStore persists properties. Every query is scoped by user id.
type GormPropertyStore struct {
	db *gorm.DB
}

// NewGormPropertyStore constructs a GormPropertyStore.
func NewGormPropertyStore(db *gorm.DB) *GormPropertyStore {
	return &GormPropertyStore{db: db}
}

// WithTx returns a store bound to tx.
func (s *GormPropertyStore) WithTx(tx *gorm.DB) *GormPropertyStore {
	return &GormPropertyStore{db: tx}
}

// Create inserts a property owned by userID.
func (s *GormPropertyStore) Create(ctx context.Context, userID string, in PropertyInput) (models.Property, error) {
	address := strings.TrimSpace(in.Address)
	if strings.TrimSpace(userID) == "" || address == "" {
		return models.Property{}, fmt.Errorf("property store: create: missing user or address")
	}
	row := models.Property{
		UserID:    userID,
		Address:   address,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Price:     in.Price,
		Beds:      in.Beds,
		Baths:     in.Baths,
		Sqft:      in.Sqft,
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return models.Property{}, fmt.Errorf("property store: create: %w", errCreate)
	}
	return row, nil
}

// Get loads one property owned by userID.
func (s *GormPropertyStore) Get(ctx context.Context, userID, id string) (models.Property, error) {
	var row models.Property
	errFind := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Property{}, ErrNotFound
		}
		return models.Property{}, fmt.Errorf("property store: get: %w", errFind)
	}
	return row, nil
}

// List returns the user's properties, newest first.
func (s *GormPropertyStore) List(ctx context.Context, userID string, limit int) ([]models.Property, error) {
	var rows []models.Property
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(ClampLimit(limit)).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("property store: list: %w", errFind)
	}
	return rows, nil
}

// UpdateValuation writes analysis results to a property owned by userID.
func (s *GormPropertyStore) UpdateValuation(ctx context.Context, userID, id string, update ValuationUpdate) error {
	res := s.db.WithContext(ctx).
		Model(&models.Property{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{
			"previous_valuation": update.PreviousValuation,
			"last_valuation":     update.LastValuation,
			"appreciation_rate":  update.AppreciationRate,
		})
	if res.Error != nil {
		return fmt.Errorf("property store: update valuation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
