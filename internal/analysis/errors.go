package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the request has no authenticated user.
	ErrUnauthorized = errors.New("analysis: unauthorized")
	// ErrInvalidPayload is returned when the body matches neither accepted shape.
	ErrInvalidPayload = errors.New("analysis: invalid payload")
	// ErrPropertyNotFound is returned when property_id does not name a property the user owns.
	ErrPropertyNotFound = errors.New("analysis: property not found")
)

// PersistenceError wraps a failure after the credit gate; the whole transaction was rolled back.
type PersistenceError struct {
	Step string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("analysis: %s: %v", e.Step, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
