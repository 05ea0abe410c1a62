// Package apperr defines the error kinds shared by every layer. Callers wrap
// one of the sentinels with context and classify with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: a customer, session or sanction does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation: caller supplied missing or malformed input; nothing was mutated.
	ErrValidation = errors.New("validation failed")
	// ErrExternalService: resolver or renderer unavailable or timed out; retryable.
	ErrExternalService = errors.New("external service failure")
	// ErrInvariantViolation: an illegal state transition was requested.
	ErrInvariantViolation = errors.New("invariant violation")
)

// ErrVersionConflict is returned by stores when an optimistic version check fails.
var ErrVersionConflict = fmt.Errorf("%w: concurrent modification", ErrInvariantViolation)

// Kind names the error class of err, or "internal" when it carries none.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrExternalService):
		return "external_service"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	default:
		return "internal"
	}
}

// UserMessage returns text that is safe to show the customer for err.
func UserMessage(err error) string {
	var te *TurnError
	if errors.As(err, &te) && te.Reply != "" {
		return te.Reply
	}
	switch {
	case errors.Is(err, ErrVersionConflict):
		return "Your application was updated by another request. Please try again."
	case errors.Is(err, ErrNotFound):
		return "We couldn't find what you were looking for. Please check the details and try again."
	case errors.Is(err, ErrValidation):
		return "Some of the details provided look incorrect. Please check and try again."
	case errors.Is(err, ErrExternalService):
		return "I'm having trouble processing your request right now. Please try again in a moment."
	default:
		return "Something went wrong on our side. Please try again later."
	}
}

// TurnError pairs an underlying failure with the reply shown to the customer.
// It unwraps to the original error so kinds survive the translation.
type TurnError struct {
	SessionID string
	Reply     string
	Err       error
}

// NewTurnError wraps err with the customer-safe message for its kind.
func NewTurnError(sessionID string, err error) *TurnError {
	return &TurnError{SessionID: sessionID, Reply: UserMessage(err), Err: err}
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("session %s: %v", e.SessionID, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// Validationf builds a validation error with context.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds a not-found error with context.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
