package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/estateiq/estateiq/internal/models"
	"github.com/estateiq/estateiq/internal/store"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ReportHandler lists stored analyses and the activity log.
type ReportHandler struct {
	db *gorm.DB
}

// NewReportHandler constructs a ReportHandler.
func NewReportHandler(db *gorm.DB) *ReportHandler {
	return &ReportHandler{db: db}
}

// Analyses returns the user's latest analyses, optionally for one property.
func (h *ReportHandler) Analyses(c *gin.Context) {
	userID := getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	analyses := store.NewGormAnalysisStore(h.db)
	rows, errList := analyses.List(ctx, userID, strings.TrimSpace(c.Query("property_id")), queryLimit(c))
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list analyses failed"})
		return
	}
	total, errCount := analyses.Count(ctx, userID)
	if errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count analyses failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatAnalysis(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"analyses": out, "total": total})
}

// Activity returns the user's analytics log, optionally filtered by action.
func (h *ReportHandler) Activity(c *gin.Context) {
	userID := getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	rows, errList := store.NewGormActivityStore(h.db).List(c.Request.Context(), userID, c.Query("action"), queryLimit(c))
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list activity failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":         row.ID,
			"action":     row.Action,
			"metadata":   rawJSON(row.Metadata),
			"created_at": row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"activity": out})
}

// formatAnalysis converts an analysis model to a response payload.
func formatAnalysis(a *models.Analysis) gin.H {
	return gin.H{
		"id":          a.ID,
		"property_id": a.PropertyID,
		"ai_output":   rawJSON(a.AIOutput),
		"created_at":  a.CreatedAt,
	}
}

// rawJSON embeds stored JSON as-is; empty columns render as null.
func rawJSON(data []byte) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(data)
}
