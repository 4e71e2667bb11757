package order

import (
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrVersionConflict = errors.New("order was modified concurrently")
	ErrConflict        = errors.New("concurrent update retries exhausted")
)

// TransitionError is returned when an aggregate method is called while the
// order is in a status that does not permit the transition. It carries enough
// context for callers to build a conflict response without string parsing.
type TransitionError struct {
	OrderID   uuid.UUID
	From      Status
	Attempted Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot transition from %s to %s", e.OrderID, e.From, e.Attempted)
}

// ValidationError is returned for bad command input before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
