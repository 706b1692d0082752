package admission

import (
	"context"
	"fmt"
	"time"
)

// fixedWindowAlgorithm counter keyed by (key, windowStart) where
// windowStart = floor(now/period)*period. The up-to-2x burst across a window
// edge is accepted behavior, not a bug.
type fixedWindowAlgorithm struct{}

// Name returns the algorithm name.
func (a *fixedWindowAlgorithm) Name() string {
	return string(AlgorithmFixedWindow)
}

// Evaluate checks the request against the current window's counter.
func (a *fixedWindowAlgorithm) Evaluate(ctx context.Context, store Store, key string, p Params, now time.Time, weight int64) (*Decision, error) {
	if weight <= 0 {
		weight = 1
	}
	if p.Limit <= 0 || p.Period <= 0 || now.IsZero() {
		return invalidParams(a.Name(), "fixed window requires limit > 0 and period > 0"), nil
	}

	periodMs := p.Period.Milliseconds()
	nowMs := now.UnixMilli()
	windowStart := nowMs - nowMs%periodMs

	// State is addressed per window; old windows expire on their own.
	windowKey := fmt.Sprintf("%s:%d", key, windowStart)

	out, err := store.EvalFixedWindow(ctx, windowKey, p.Limit, periodMs, nowMs, weight)
	if err != nil {
		return nil, err
	}

	return decisionFromOutcome(a.Name(), p.Limit, out), nil
}
