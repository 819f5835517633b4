package handlers

import (
	"errors"
	"net/http"

	"github.com/estateiq/estateiq/internal/billing"
	"github.com/estateiq/estateiq/internal/metrics"
	"github.com/estateiq/estateiq/internal/models"
	internalsettings "github.com/estateiq/estateiq/internal/settings"
	"github.com/estateiq/estateiq/internal/store"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BillingFrontHandler serves the user's credit balance.
type BillingFrontHandler struct {
	db      *gorm.DB
	ledger  *billing.Ledger
	metrics *metrics.Metrics
}

// NewBillingFrontHandler constructs a BillingFrontHandler.
func NewBillingFrontHandler(db *gorm.DB, ledger *billing.Ledger, m *metrics.Metrics) *BillingFrontHandler {
	if ledger == nil {
		ledger = billing.NewLedger(db, nil)
	}
	return &BillingFrontHandler{db: db, ledger: ledger, metrics: m}
}

// Get returns the plan and remaining credits of the authenticated user.
func (h *BillingFrontHandler) Get(c *gin.Context) {
	userID := getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	account, errAccount := h.ledger.Account(c.Request.Context(), userID)
	if errAccount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query billing failed"})
		return
	}
	c.JSON(http.StatusOK, account)
}

// Plans lists the plan offered to new users and the size of a credit pack.
func (h *BillingFrontHandler) Plans(c *gin.Context) {
	credits := internalsettings.Credits()
	c.JSON(http.StatusOK, gin.H{
		"plans": []gin.H{{
			"name":            credits.Plan,
			"default_credits": credits.Default,
			"top_up_credits":  credits.TopUp,
		}},
	})
}

// TopUp adds one credit pack and records the purchase in the activity log.
func (h *BillingFrontHandler) TopUp(c *gin.Context) {
	userID := getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	amount := internalsettings.Credits().TopUp
	var after int
	errTx := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		credited, errCredit := h.ledger.CreditTx(ctx, tx, userID, amount)
		if errCredit != nil {
			return errCredit
		}
		after = credited
		return store.NewGormActivityStore(tx).Append(ctx, userID, models.ActionCreditsTopUp, map[string]any{
			"amount":         amount,
			"credits_before": credited - amount,
			"credits_after":  credited,
		})
	})
	if errTx != nil {
		if errors.Is(errTx, billing.ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid top-up amount"})
			return
		}
		log.WithError(errTx).WithField("user_id", userID).Error("billing: top-up failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "top-up failed"})
		return
	}

	h.metrics.ObserveTopUp(amount)
	account, errAccount := h.ledger.Account(ctx, userID)
	if errAccount != nil {
		c.JSON(http.StatusOK, gin.H{"added": amount, "credits": after})
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": amount, "plan": account.Plan, "credits": account.Credits})
}
