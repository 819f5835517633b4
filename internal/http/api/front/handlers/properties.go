package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/estateiq/estateiq/internal/geocode"
	"github.com/estateiq/estateiq/internal/metrics"
	"github.com/estateiq/estateiq/internal/models"
	"github.com/estateiq/estateiq/internal/store"
	"github.com/estateiq/estateiq/internal/valuation"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// maxAddressLength bounds the free-form address field.
const maxAddressLength = 512

// PropertyHandler manages the user's portfolio.
type PropertyHandler struct {
	db       *gorm.DB
	geocoder geocode.Geocoder
	metrics  *metrics.Metrics
}

// NewPropertyHandler constructs a PropertyHandler. A nil geocoder stores properties without coordinates.
func NewPropertyHandler(db *gorm.DB, geocoder geocode.Geocoder, m *metrics.Metrics) *PropertyHandler {
	return &PropertyHandler{db: db, geocoder: geocoder, metrics: m}
}

// createPropertyRequest defines the request body for property creation.
type createPropertyRequest struct {
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Price     *float64 `json:"price"`
	Beds      *int     `json:"beds"`
	Baths     *float64 `json:"baths"`
	Sqft      *int     `json:"sqft"`
}

// Create stores a property and geocodes its address when no coordinates are given.
func (h *PropertyHandler) Create(c *gin.Context) {
	userID := getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body createPropertyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	address := strings.TrimSpace(body.Address)
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
		return
	}
	if len(address) > maxAddressLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is too long"})
		return
	}
	if invalidNonNegative(body.Price) || invalidNonNegative(body.Baths) ||
		(body.Beds != nil && *body.Beds < 0) || (body.Sqft != nil && *body.Sqft < 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "numeric fields must not be negative"})
		return
	}

	ctx := c.Request.Context()
	lat, lng := body.Latitude, body.Longitude
	if lat == nil || lng == nil {
		lat, lng = h.lookup(ctx, address)
	}

	var created models.Property
	errTx := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, errCreate := store.NewGormPropertyStore(tx).Create(ctx, userID, store.PropertyInput{
			Address:   address,
			Latitude:  lat,
			Longitude: lng,
			Price:     body.Price,
			Beds:      body.Beds,
			Baths:     body.Baths,
			Sqft:      body.Sqft,
		})
		if errCreate != nil {
			return errCreate
		}
		created = row
		return store.NewGormActivityStore(tx).Append(ctx, userID, models.ActionPropertyCreate, map[string]any{
			"property_id": row.ID,
			"geocoded":    lat != nil && lng != nil,
		})
	})
	if errTx != nil {
		log.WithError(errTx).WithField("user_id", userID).Error("properties: create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create property failed"})
		return
	}

	c.JSON(http.StatusCreated, formatProperty(&created))
}

// List returns the user's properties with their map marker.
func (h *PropertyHandler) List(c *gin.Context) {
	userID := getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	rows, errList := store.NewGormPropertyStore(h.db).List(c.Request.Context(), userID, queryLimit(c))
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list properties failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatProperty(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"properties": out})
}

// Get returns one property owned by the user.
func (h *PropertyHandler) Get(c *gin.Context) {
	userID := getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	row, errGet := store.NewGormPropertyStore(h.db).Get(c.Request.Context(), userID, strings.TrimSpace(c.Param("id")))
	if errGet != nil {
		if errors.Is(errGet, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "property not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query property failed"})
		return
	}
	c.JSON(http.StatusOK, formatProperty(&row))
}

func (h *PropertyHandler) lookup(ctx context.Context, address string) (*float64, *float64) {
	if h.geocoder == nil {
		h.metrics.ObserveGeocode("disabled")
		return nil, nil
	}
	lat, lng := geocode.Lookup(ctx, h.geocoder, address)
	if lat == nil || lng == nil {
		h.metrics.ObserveGeocode("miss")
		return nil, nil
	}
	h.metrics.ObserveGeocode("ok")
	return lat, lng
}

func invalidNonNegative(v *float64) bool {
	return v != nil && *v < 0
}

// formatProperty converts a property model to a response payload.
func formatProperty(p *models.Property) gin.H {
	marker := valuation.MarkerFor(p.AppreciationRate)
	return gin.H{
		"id":                 p.ID,
		"address":            p.Address,
		"latitude":           p.Latitude,
		"longitude":          p.Longitude,
		"price":              p.Price,
		"beds":               p.Beds,
		"baths":              p.Baths,
		"sqft":               p.Sqft,
		"previous_valuation": p.PreviousValuation,
		"last_valuation":     p.LastValuation,
		"appreciation_rate":  p.AppreciationRate,
		"marker": gin.H{
			"status": marker.Status,
			"color":  marker.Color,
		},
		"created_at": p.CreatedAt,
		"updated_at": p.UpdatedAt,
	}
}
