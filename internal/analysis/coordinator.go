// Package analysis runs the credit-gated valuation transaction.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/estateiq/estateiq/internal/billing"
	"github.com/estateiq/estateiq/internal/db"
	"github.com/estateiq/estateiq/internal/models"
	"github.com/estateiq/estateiq/internal/store"
	"github.com/estateiq/estateiq/internal/valuation"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrNoCredits is returned when the user has no credit to spend.
var ErrNoCredits = billing.ErrNoCredits

// MaxIdempotencyKeyLength bounds the Idempotency-Key header.
const MaxIdempotencyKeyLength = 255

// failureAuditTimeout bounds the best-effort audit written after a rollback.
const failureAuditTimeout = 5 * time.Second

// Request is one analysis attempt.
type Request struct {
	UserID         string
	Payload        []byte
	IdempotencyKey string
}

// Outcome is a successful (or replayed) analysis.
type Outcome struct {
	AnalysisID    string
	PropertyID    string
	Result        valuation.Result
	CreditsBefore int
	CreditsAfter  int
	// Replayed is set when the outcome was loaded from an earlier request with the same key.
	Replayed bool
}

// Response is the JSON body returned for an outcome.
type Response struct {
	AnalysisID string `json:"analysis_id"`
	valuation.Result
}

// Response returns the client view of the outcome.
func (o Outcome) Response() Response {
	return Response{AnalysisID: o.AnalysisID, Result: o.Result}
}

// Coordinator authorizes, bills and persists analyses.
type Coordinator struct {
	db         *gorm.DB
	engine     valuation.Engine
	ledger     *billing.Ledger
	properties *store.GormPropertyStore
	analyses   *store.GormAnalysisStore
	activity   *store.GormActivityStore
}

// NewCoordinator constructs a Coordinator. A nil engine uses the stub engine and a
// nil ledger reads credit defaults from the live settings.
func NewCoordinator(conn *gorm.DB, engine valuation.Engine, ledger *billing.Ledger) *Coordinator {
	if engine == nil {
		engine = valuation.NewStubEngine()
	}
	if ledger == nil {
		ledger = billing.NewLedger(conn, nil)
	}
	return &Coordinator{
		db:         conn,
		engine:     engine,
		ledger:     ledger,
		properties: store.NewGormPropertyStore(conn),
		analyses:   store.NewGormAnalysisStore(conn),
		activity:   store.NewGormActivityStore(conn),
	}
}

// Run executes one analysis. The credit reservation, property update, analysis
// insert and audit entry commit together or not at all.
func (c *Coordinator) Run(ctx context.Context, req Request) (Outcome, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return Outcome{}, ErrUnauthorized
	}
	payload, errParse := ParsePayload(req.Payload)
	if errParse != nil {
		return Outcome{}, errParse
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if len(key) > MaxIdempotencyKeyLength {
		return Outcome{}, ErrInvalidPayload
	}

	if key != "" {
		if replay, ok, errReplay := c.replay(ctx, userID, key); errReplay != nil || ok {
			return replay, errReplay
		}
	}

	if payload.PropertyID != "" {
		if _, errGet := c.properties.Get(ctx, userID, payload.PropertyID); errGet != nil {
			if errors.Is(errGet, store.ErrNotFound) {
				return Outcome{}, ErrPropertyNotFound
			}
			return Outcome{}, fmt.Errorf("analysis: load property: %w", errGet)
		}
	}

	var (
		outcome    Outcome
		step       string
		gatePassed bool
	)
	errTx := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		step = "reserve credit"
		before, after, errReserve := c.ledger.Reserve(ctx, tx, userID)
		if errReserve != nil {
			return errReserve
		}
		gatePassed = true

		step = "compute"
		result, errEstimate := c.engine.Estimate(ctx, valuation.Input{
			PropertyID:     payload.PropertyID,
			PriorValuation: payload.PreviousValuation,
			LastValuation:  payload.LastValuation,
			Data:           payload.Data,
		})
		if errEstimate != nil {
			return errEstimate
		}

		var propertyID *string
		if payload.PropertyID != "" {
			step = "update property"
			propertyID = &payload.PropertyID
			if errUpdate := c.properties.WithTx(tx).UpdateValuation(ctx, userID, payload.PropertyID, store.ValuationUpdate{
				PreviousValuation: result.PriorValuation,
				LastValuation:     result.ValuationEstimate,
				AppreciationRate:  result.AppreciationRate,
			}); errUpdate != nil {
				return errUpdate
			}
		}

		step = "insert analysis"
		aiOutput, errMarshal := json.Marshal(result)
		if errMarshal != nil {
			return errMarshal
		}
		row := models.Analysis{
			UserID:     userID,
			PropertyID: propertyID,
			AIOutput:   aiOutput,
		}
		if key != "" {
			row.IdempotencyKey = &key
		}
		if errCreate := c.analyses.WithTx(tx).Create(ctx, &row); errCreate != nil {
			return errCreate
		}

		step = "audit"
		if errAppend := c.activity.WithTx(tx).Append(ctx, userID, models.ActionAIAnalyze, map[string]any{
			"analysis_id":    row.ID,
			"property_id":    propertyID,
			"credits_before": before,
			"credits_after":  after,
		}); errAppend != nil {
			return errAppend
		}

		outcome = Outcome{
			AnalysisID:    row.ID,
			PropertyID:    payload.PropertyID,
			Result:        result,
			CreditsBefore: before,
			CreditsAfter:  after,
		}
		return nil
	})
	if errTx == nil {
		return outcome, nil
	}

	switch {
	case errors.Is(errTx, billing.ErrNoCredits):
		return Outcome{}, ErrNoCredits
	case errors.Is(errTx, store.ErrNotFound):
		// The property was deleted between the ownership check and the update.
		return Outcome{}, ErrPropertyNotFound
	case key != "" && db.IsUniqueViolation(errTx):
		// A concurrent request with the same key committed first.
		if replay, ok, errReplay := c.replay(ctx, userID, key); errReplay == nil && ok {
			return replay, nil
		}
	}

	if gatePassed {
		c.recordFailure(ctx, userID, payload.PropertyID, step, errTx)
	}
	log.WithError(errTx).WithFields(log.Fields{
		"user_id": userID,
		"step":    step,
	}).Warn("analysis: transaction rolled back")
	return Outcome{}, &PersistenceError{Step: step, Err: errTx}
}

// replay loads the analysis stored under key, if any.
func (c *Coordinator) replay(ctx context.Context, userID, key string) (Outcome, bool, error) {
	row, errFind := c.analyses.FindByIdempotencyKey(ctx, userID, key)
	if errFind != nil {
		if errors.Is(errFind, store.ErrNotFound) {
			return Outcome{}, false, nil
		}
		return Outcome{}, false, fmt.Errorf("analysis: load idempotent result: %w", errFind)
	}
	var result valuation.Result
	if errUnmarshal := json.Unmarshal(row.AIOutput, &result); errUnmarshal != nil {
		return Outcome{}, false, fmt.Errorf("analysis: decode stored result: %w", errUnmarshal)
	}
	outcome := Outcome{AnalysisID: row.ID, Result: result, Replayed: true}
	if row.PropertyID != nil {
		outcome.PropertyID = *row.PropertyID
	}
	return outcome, true, nil
}

// recordFailure appends an ai_analyze_failed entry outside the rolled-back transaction.
func (c *Coordinator) recordFailure(ctx context.Context, userID, propertyID, step string, cause error) {
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureAuditTimeout)
	defer cancel()

	var property any
	if propertyID != "" {
		property = propertyID
	}
	if errAppend := c.activity.Append(auditCtx, userID, models.ActionAIAnalyzeFailed, map[string]any{
		"property_id": property,
		"step":        step,
		"error":       cause.Error(),
	}); errAppend != nil {
		log.WithError(errAppend).Warn("analysis: failed to record failed attempt")
	}
}
