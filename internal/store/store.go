// Package store holds the gorm-backed persistence for user-owned records.
package store

import (
	"errors"
)

// ErrNotFound is returned when a record does not exist or belongs to another user.
var ErrNotFound = errors.New("store: not found")

// DefaultListLimit and MaxListLimit bound list queries.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ClampLimit normalizes a client supplied list limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
