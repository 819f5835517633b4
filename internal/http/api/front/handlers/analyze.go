package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/estateiq/estateiq/internal/analysis"
	"github.com/estateiq/estateiq/internal/metrics"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// IdempotencyKeyHeader lets clients retry an analysis without paying twice.
const IdempotencyKeyHeader = "Idempotency-Key"

// maxAnalyzeBodyBytes bounds the analysis request body.
const maxAnalyzeBodyBytes = 1 << 20

// AnalyzeHandler runs credit-gated valuations.
type AnalyzeHandler struct {
	coordinator *analysis.Coordinator
	metrics     *metrics.Metrics
}

// NewAnalyzeHandler constructs an AnalyzeHandler. m may be nil.
func NewAnalyzeHandler(coordinator *analysis.Coordinator, m *metrics.Metrics) *AnalyzeHandler {
	return &AnalyzeHandler{coordinator: coordinator, metrics: m}
}

// Analyze debits one credit, runs the valuation engine and stores the result.
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	userID := getUserID(c)
	if userID == "" {
		h.metrics.ObserveAnalysis(metrics.OutcomeUnauthorized)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	body, errRead := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxAnalyzeBodyBytes))
	if errRead != nil {
		h.metrics.ObserveAnalysis(metrics.OutcomeInvalid)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	outcome, errRun := h.coordinator.Run(ctx, analysis.Request{
		UserID:         userID,
		Payload:        body,
		IdempotencyKey: strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader)),
	})
	if errRun != nil {
		h.respondError(c, userID, errRun)
		return
	}

	if outcome.Replayed {
		h.metrics.ObserveAnalysis(metrics.OutcomeReplayed)
		c.Header("Idempotent-Replayed", "true")
	} else {
		h.metrics.ObserveAnalysis(metrics.OutcomeSuccess)
	}
	c.JSON(http.StatusOK, outcome.Response())
}

func (h *AnalyzeHandler) respondError(c *gin.Context, userID string, errRun error) {
	switch {
	case errors.Is(errRun, analysis.ErrUnauthorized):
		h.metrics.ObserveAnalysis(metrics.OutcomeUnauthorized)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(errRun, analysis.ErrInvalidPayload):
		h.metrics.ObserveAnalysis(metrics.OutcomeInvalid)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
	case errors.Is(errRun, analysis.ErrNoCredits):
		h.metrics.ObserveAnalysis(metrics.OutcomeNoCredits)
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "No credits remaining", "code": CodeNoCredits})
	case errors.Is(errRun, analysis.ErrPropertyNotFound):
		h.metrics.ObserveAnalysis(metrics.OutcomeNotFound)
		c.JSON(http.StatusNotFound, gin.H{"error": "property not found"})
	default:
		h.metrics.ObserveAnalysis(metrics.OutcomeFailed)
		log.WithError(errRun).WithField("user_id", userID).Error("analyze: request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Analysis failed", "code": CodeAnalysisFailed})
	}
}
