package warehouse

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotConfigured means the warehouse project is not set; endpoints
	// surface it as service-unavailable rather than an internal error.
	ErrNotConfigured = errors.New("warehouse is not configured")

	ErrOrderNotFound = errors.New("order not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrUserExists    = errors.New("user already exists")
)

// WarehouseError wraps errors with operation context.
type WarehouseError struct {
	Op      string // Operation that failed
	Entity  string // Entity type (order, user, comment, table)
	ID      string // Entity ID if applicable
	Message string
	Err     error
}

func (e *WarehouseError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *WarehouseError) Unwrap() error {
	return e.Err
}

// NewWarehouseError creates a new WarehouseError.
func NewWarehouseError(op, entity, id, message string, err error) *WarehouseError {
	return &WarehouseError{
		Op:      op,
		Entity:  entity,
		ID:      id,
		Message: message,
		Err:     err,
	}
}
