package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a required field is missing or malformed. It is
	// detected locally, before any backend call.
	ErrValidation = errors.New("validation failed")
	// ErrAuthRequired indicates the operation needs an authenticated session.
	ErrAuthRequired = errors.New("authentication required")
	// ErrAlreadyInCart is returned when adding a product that already has a line.
	ErrAlreadyInCart = errors.New("product already in cart")
	// ErrOutOfBounds is returned when a quantity falls outside [1, limit].
	ErrOutOfBounds = errors.New("quantity out of bounds")
	// ErrPromoInvalid is returned when the backend rejects a promo code.
	ErrPromoInvalid = errors.New("promo code invalid")
	// ErrNetworkFailure indicates the backend was unreachable or answered non-2xx.
	ErrNetworkFailure = errors.New("backend unavailable")
)

// ValidationError names the field that failed local validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError for field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
