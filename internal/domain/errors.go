package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrForbidden            = errors.New("forbidden")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrSubscriptionInactive = errors.New("subscription inactive")
	ErrSeatLimitReached     = errors.New("seat limit reached")
	ErrUpstream             = errors.New("upstream provider error")

	// ErrLastOwner rejects a change that would leave an organization without an owner
	ErrLastOwner = fmt.Errorf("organization must keep at least one owner: %w", ErrConflict)
)

// ValidationError reports a single invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid is shorthand for building a *ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// transitionError wraps ErrInvalidTransition with the offending states.
func transitionError(kind string, from, to any) error {
	return fmt.Errorf("%w: %s cannot move from %v to %v", ErrInvalidTransition, kind, from, to)
}
