// Package ratelimit adapts the platform's sliding-window limiter into the
// gate every mutating messaging operation passes through.
package ratelimit

import (
	"context"
	"time"
)

// Result of a gate check. RetryAfter is only meaningful when Allowed is
// false.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Gate admits or rejects a mutating call for an identifier within a
// category (e.g. "send_message", "typing").
type Gate interface {
	Check(ctx context.Context, identifier, category string) (Result, error)
}

// AllowAll is a pass-through gate for tests and local development.
type AllowAll struct{}

func (AllowAll) Check(context.Context, string, string) (Result, error) {
	return Result{Allowed: true}, nil
}
