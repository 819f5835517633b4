// Package billing owns the per-user credit balance.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/estateiq/estateiq/internal/config"
	"github.com/estateiq/estateiq/internal/models"
	internalsettings "github.com/estateiq/estateiq/internal/settings"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNoCredits is returned when a debit would take the balance below zero.
	ErrNoCredits = errors.New("billing: no credits remaining")
	// ErrInvalidAmount is returned for non-positive debit or credit amounts.
	ErrInvalidAmount = errors.New("billing: amount must be positive")
	// ErrMissingUser is returned when no user id is given.
	ErrMissingUser = errors.New("billing: missing user id")
)

// materializeAttempts bounds the insert/update retry when two requests create the same row.
const materializeAttempts = 3

// CreditsProvider supplies the current credit defaults.
type CreditsProvider func() config.CreditsConfig

// Account is the billing view returned to clients.
type Account struct {
	Plan    string `json:"plan"`
	Credits int    `json:"credits"`
}

// Ledger reads and mutates billing rows.
type Ledger struct {
	db       *gorm.DB
	provider CreditsProvider
}

// NewLedger constructs a Ledger; a nil provider reads the live settings snapshot.
func NewLedger(db *gorm.DB, provider CreditsProvider) *Ledger {
	if provider == nil {
		provider = internalsettings.Credits
	}
	return &Ledger{db: db, provider: provider}
}

// Balance returns the user's credits, or the configured default when no row exists.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	account, errAccount := l.Account(ctx, userID)
	if errAccount != nil {
		return 0, errAccount
	}
	return account.Credits, nil
}

// Account returns the user's plan and credits without creating a row.
func (l *Ledger) Account(ctx context.Context, userID string) (Account, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Account{}, ErrMissingUser
	}
	cfg := l.provider()
	var row models.Billing
	errFind := l.db.WithContext(ctx).
		Select("plan", "credits").
		Where("user_id = ?", userID).
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Account{Plan: cfg.Plan, Credits: cfg.Default}, nil
		}
		return Account{}, fmt.Errorf("billing: load account: %w", errFind)
	}
	return Account{Plan: row.Plan, Credits: row.Credits}, nil
}

// Open creates the user's billing row with the default balance. Existing rows are left alone.
func (l *Ledger) Open(ctx context.Context, tx *gorm.DB, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrMissingUser
	}
	if tx == nil {
		tx = l.db
	}
	cfg := l.provider()
	row := models.Billing{UserID: userID, Plan: cfg.Plan, Credits: cfg.Default}
	if errCreate := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&row).Error; errCreate != nil {
		return fmt.Errorf("billing: open account: %w", errCreate)
	}
	return nil
}

// Debit removes amount credits in its own transaction and returns the new balance.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int) (int, error) {
	var after int
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, afterDebit, errDebit := l.debit(ctx, tx, userID, amount)
		after = afterDebit
		return errDebit
	})
	if errTx != nil {
		return 0, errTx
	}
	return after, nil
}

// Reserve consumes one credit inside tx and returns the balance before and after.
// A user without a row is materialised at default - 1 in the same transaction.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, userID string) (int, int, error) {
	return l.debit(ctx, tx, userID, 1)
}

// debit runs the conditional decrement. Check and decrement are one UPDATE, so
// concurrent callers can never spend the same credit twice.
func (l *Ledger) debit(ctx context.Context, tx *gorm.DB, userID string, amount int) (int, int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, 0, ErrMissingUser
	}
	if amount <= 0 {
		return 0, 0, ErrInvalidAmount
	}
	cfg := l.provider()

	for attempt := 0; attempt < materializeAttempts; attempt++ {
		res := tx.WithContext(ctx).
			Model(&models.Billing{}).
			Where("user_id = ? AND credits >= ?", userID, amount).
			Update("credits", gorm.Expr("credits - ?", amount))
		if res.Error != nil {
			return 0, 0, fmt.Errorf("billing: debit: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			after, errLoad := loadCredits(ctx, tx, userID)
			if errLoad != nil {
				return 0, 0, errLoad
			}
			return after + amount, after, nil
		}

		var count int64
		if errCount := tx.WithContext(ctx).
			Model(&models.Billing{}).
			Where("user_id = ?", userID).
			Count(&count).Error; errCount != nil {
			return 0, 0, fmt.Errorf("billing: debit: count: %w", errCount)
		}
		if count > 0 {
			return 0, 0, ErrNoCredits
		}
		if cfg.Default < amount {
			return 0, 0, ErrNoCredits
		}

		row := models.Billing{UserID: userID, Plan: cfg.Plan, Credits: cfg.Default - amount}
		created := tx.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
			Create(&row)
		if created.Error != nil {
			return 0, 0, fmt.Errorf("billing: debit: materialize: %w", created.Error)
		}
		if created.RowsAffected > 0 {
			return cfg.Default, cfg.Default - amount, nil
		}
		// Another request created the row first; retry the conditional update against it.
	}
	return 0, 0, fmt.Errorf("billing: debit: row for %s kept changing", userID)
}

// Credit adds amount credits in its own transaction and returns the new balance.
// A user without a row starts from the default balance.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int) (int, error) {
	var after int
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		credited, errCredit := l.CreditTx(ctx, tx, userID, amount)
		after = credited
		return errCredit
	})
	if errTx != nil {
		return 0, errTx
	}
	return after, nil
}

// CreditTx adds amount credits inside tx so callers can commit it with related writes.
func (l *Ledger) CreditTx(ctx context.Context, tx *gorm.DB, userID string, amount int) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrMissingUser
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	cfg := l.provider()

	for attempt := 0; attempt < materializeAttempts; attempt++ {
		res := tx.WithContext(ctx).
			Model(&models.Billing{}).
			Where("user_id = ?", userID).
			Update("credits", gorm.Expr("credits + ?", amount))
		if res.Error != nil {
			return 0, fmt.Errorf("billing: credit: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			return loadCredits(ctx, tx, userID)
		}

		row := models.Billing{UserID: userID, Plan: cfg.Plan, Credits: cfg.Default + amount}
		created := tx.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
			Create(&row)
		if created.Error != nil {
			return 0, fmt.Errorf("billing: credit: materialize: %w", created.Error)
		}
		if created.RowsAffected > 0 {
			return row.Credits, nil
		}
	}
	return 0, fmt.Errorf("billing: credit: row for %s kept changing", userID)
}

func loadCredits(ctx context.Context, tx *gorm.DB, userID string) (int, error) {
	var row models.Billing
	if errFind := tx.WithContext(ctx).
		Select("credits").
		Where("user_id = ?", userID).
		Take(&row).Error; errFind != nil {
		return 0, fmt.Errorf("billing: load credits: %w", errFind)
	}
	return row.Credits, nil
}
