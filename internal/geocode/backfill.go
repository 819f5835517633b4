package geocode

import (
	"context"
	"fmt"
	"time"

	"github.com/estateiq/estateiq/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultBackfillInterval = 10 * time.Minute
	defaultBackfillBatch    = 25
)

// Backfiller periodically geocodes properties stored without coordinates.
type Backfiller struct {
	db       *gorm.DB
	geocoder Geocoder
	interval time.Duration
	batch    int
}

// NewBackfiller constructs a Backfiller. It returns nil when there is nothing to run.
func NewBackfiller(db *gorm.DB, geocoder *MapboxClient) *Backfiller {
	if db == nil || !geocoder.Enabled() {
		return nil
	}
	return &Backfiller{
		db:       db,
		geocoder: geocoder,
		interval: defaultBackfillInterval,
		batch:    defaultBackfillBatch,
	}
}

// Start runs the backfill loop in the background.
func (b *Backfiller) Start(ctx context.Context) {
	if b == nil {
		return
	}
	go b.run(ctx)
	log.Infof("geocode backfill started (interval=%s)", b.interval)
}

func (b *Backfiller) run(ctx context.Context) {
	if _, err := b.RunOnce(ctx); err != nil {
		log.WithError(err).Warn("geocode backfill: initial run failed")
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.RunOnce(ctx); err != nil {
				log.WithError(err).Warn("geocode backfill: run failed")
			}
		}
	}
}

// RunOnce geocodes one batch and returns how many properties were updated.
func (b *Backfiller) RunOnce(ctx context.Context) (int, error) {
	if b == nil || b.db == nil {
		return 0, fmt.Errorf("geocode backfill: nil db")
	}
	var rows []models.Property
	if errFind := b.db.WithContext(ctx).
		Select("id", "user_id", "address").
		Where("latitude IS NULL OR longitude IS NULL").
		Order("created_at ASC").
		Limit(b.batch).
		Find(&rows).Error; errFind != nil {
		return 0, fmt.Errorf("geocode backfill: list properties: %w", errFind)
	}

	updated := 0
	for _, row := range rows {
		point, errGeocode := b.geocoder.Geocode(ctx, row.Address)
		if errGeocode != nil {
			log.WithError(errGeocode).WithField("property_id", row.ID).Debug("geocode backfill: skipped property")
			continue
		}
		if errUpdate := b.db.WithContext(ctx).
			Model(&models.Property{}).
			Where("id = ? AND user_id = ?", row.ID, row.UserID).
			Updates(map[string]any{"latitude": point.Latitude, "longitude": point.Longitude}).Error; errUpdate != nil {
			return updated, fmt.Errorf("geocode backfill: update property: %w", errUpdate)
		}
		updated++
	}
	return updated, nil
}
