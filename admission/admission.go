// Package admission provides policy-driven request admission control.
//
// Design philosophy:
// - Standalone package, depends only on the logger and errcode packages
// - Five admission algorithms: counter, fixed window, sliding window,
//   token bucket, leaky bucket
// - Every decision is one atomic round-trip against the shared store,
//   correct across concurrent process instances
// - Supports multiple storages: memory, Redis
// - Event-driven, the application layer can subscribe to all decisions
// - Statistics exposed, observability endpoints read them directly
package admission

import (
	"time"
)

// Decision per-invocation admission result. Ephemeral, never persisted.
type Decision struct {
	// Allowed whether the invocation may proceed
	Allowed bool

	// Remaining quota left in the current cycle (max(0, limit-current))
	Remaining int64

	// Limit total quota of the policy
	Limit int64

	// CurrentValue current count / volume / consumed tokens
	CurrentValue int64

	// ResetAt when the quota resets or the next slot frees up
	ResetAt time.Time

	// WaitMs suggested wait before retrying (leaky bucket only)
	WaitMs int64

	// Hotspot the denial came from the per-value hotspot limit
	Hotspot bool

	// ErrorCode machine-usable code carried to the caller on denial
	ErrorCode int

	// Message human-readable denial message
	Message string

	// Key the fully resolved limiter key that was evaluated
	Key string

	// Strategy name of the algorithm that produced the decision
	Strategy string
}

// SecondsToReset returns the whole seconds until ResetAt, floored at zero.
func (d *Decision) SecondsToReset(now time.Time) int64 {
	if d.ResetAt.IsZero() || !d.ResetAt.After(now) {
		return 0
	}
	return int64(d.ResetAt.Sub(now).Seconds())
}
