package admission

import (
	"context"
	"time"
)

// slidingWindowAlgorithm partitions the period into N equal slices, each with
// its own counter. The live count is the sum of the slices whose start falls
// within the trailing period, which removes the fixed-window edge artifact at
// the cost of N counters per key.
type slidingWindowAlgorithm struct{}

// Name returns the algorithm name.
func (a *slidingWindowAlgorithm) Name() string {
	return string(AlgorithmSlidingWindow)
}

// Evaluate checks the request against the summed slice counters.
func (a *slidingWindowAlgorithm) Evaluate(ctx context.Context, store Store, key string, p Params, now time.Time, weight int64) (*Decision, error) {
	if weight <= 0 {
		weight = 1
	}
	slices := p.Slices
	if slices <= 0 {
		slices = DefaultWindowSlices
	}
	if p.Limit <= 0 || p.Period <= 0 || now.IsZero() {
		return invalidParams(a.Name(), "sliding window requires limit > 0 and period > 0"), nil
	}

	out, err := store.EvalSlidingWindow(ctx, key, p.Limit, p.Period.Milliseconds(), slices, now.UnixMilli(), weight)
	if err != nil {
		return nil, err
	}

	return decisionFromOutcome(a.Name(), p.Limit, out), nil
}
