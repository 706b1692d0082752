package admission

import (
	"context"
	"time"
)

// counterAlgorithm counter with explicit reset timestamp. When the reset
// passes, the count starts over at zero for a fresh period.
type counterAlgorithm struct{}

// Name returns the algorithm name.
func (a *counterAlgorithm) Name() string {
	return string(AlgorithmCounter)
}

// Evaluate checks the request against the counter state.
func (a *counterAlgorithm) Evaluate(ctx context.Context, store Store, key string, p Params, now time.Time, weight int64) (*Decision, error) {
	if weight <= 0 {
		weight = 1
	}
	if p.Limit <= 0 || p.Period <= 0 || now.IsZero() {
		return invalidParams(a.Name(), "counter requires limit > 0 and period > 0"), nil
	}

	out, err := store.EvalCounter(ctx, key, p.Limit, p.Period.Milliseconds(), now.UnixMilli(), weight)
	if err != nil {
		return nil, err
	}

	return decisionFromOutcome(a.Name(), p.Limit, out), nil
}
