package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a row does not exist or is owned by
	// another user.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when input violates an entity constraint.
	ErrValidation = errors.New("validation failed")

	// ErrUnavailable is returned when the backing medium cannot be
	// read or written.
	ErrUnavailable = errors.New("store unavailable")
)

// Invalid wraps ErrValidation with a reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Unavailable wraps a backend failure so callers can match ErrUnavailable
// while keeping the driver error in the chain.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
