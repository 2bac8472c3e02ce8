// Package apperr defines the error taxonomy surfaced by the messaging
// subsystem's synchronous operations.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports malformed or semantically invalid input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// PermissionError reports an action on a resource the caller does not own or
// is not a participant of.
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string { return "permission: " + e.Reason }

// NotFoundError reports an unknown conversation or message id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

// RateLimitedError reports a Rate Gate rejection.
type RateLimitedError struct {
	Category   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on %s, retry after %s", e.Category, e.RetryAfter)
}

// DeliveryDegraded reports a failed fan-out push to a peer. It is logged and
// never returned to the caller of the originating mutation.
type DeliveryDegraded struct {
	UserID string
	Cause  error
}

func (e *DeliveryDegraded) Error() string {
	return fmt.Sprintf("delivery to %s degraded: %v", e.UserID, e.Cause)
}

func (e *DeliveryDegraded) Unwrap() error { return e.Cause }

func Validation(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func Permission(format string, args ...any) error {
	return &PermissionError{Reason: fmt.Sprintf(format, args...)}
}

func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

func IsRateLimited(err error) bool {
	var re *RateLimitedError
	return errors.As(err, &re)
}
