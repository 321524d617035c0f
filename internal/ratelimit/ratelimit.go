// Package ratelimit provides per-(user, action) request rate limiting.
//
// The in-memory sliding-window limiter is the default. The Limiter interface
// is the contract, so multi-instance deployments can substitute a shared
// backend without touching callers.
package ratelimit

import (
	"context"
	"time"
)

// Window is the sliding-window span every quota is measured against.
const Window = time.Minute

// DefaultQuotas maps action names to requests per minute per user.
// Actions absent from the table fall back to DefaultQuota.
var DefaultQuotas = map[string]int{
	"create-board":      10,
	"create-card":       60,
	"update-card":       120,
	"update-card-order": 120,
	"delete-card":       60,
	"create-comment":    60,
	"update-comment":    60,
	"delete-comment":    40,
	"add-reaction":      120,
	"remove-reaction":   120,
}

// DefaultQuota applies to actions without an explicit table entry.
const DefaultQuota = 60

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration // Time until the oldest counted request leaves the window.
}

// Limiter decides whether a (user, action) pair may proceed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Check consumes one slot for the pair when allowed. Errors signal a
	// limiter malfunction; callers should fail open rather than block traffic.
	Check(ctx context.Context, userID, action string) (Decision, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Check always allows.
func (NoopLimiter) Check(context.Context, string, string) (Decision, error) {
	return Decision{Allowed: true, Remaining: DefaultQuota}, nil
}

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
