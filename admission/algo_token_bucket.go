package admission

import (
	"context"
	"time"
)

// tokenBucketAlgorithm refills elapsed × rate tokens capped at capacity on
// every evaluation, then tries to take weight tokens. Supports bursts up to
// capacity after idle accumulation.
type tokenBucketAlgorithm struct{}

// Name returns the algorithm name.
func (a *tokenBucketAlgorithm) Name() string {
	return string(AlgorithmTokenBucket)
}

// Evaluate refills and takes tokens in one atomic step.
func (a *tokenBucketAlgorithm) Evaluate(ctx context.Context, store Store, key string, p Params, now time.Time, weight int64) (*Decision, error) {
	if weight <= 0 {
		weight = 1
	}
	if p.Capacity <= 0 || p.RefillRate <= 0 || now.IsZero() {
		return invalidParams(a.Name(), "token bucket requires capacity > 0 and refill rate > 0"), nil
	}

	// A warmup period makes the bucket start empty instead of full.
	initTokens := p.Capacity
	if p.Warmup > 0 {
		initTokens = 0
	}

	out, err := store.EvalTokenBucket(ctx, key, p.Capacity, p.RefillRate, initTokens, now.UnixMilli(), weight)
	if err != nil {
		return nil, err
	}

	d := decisionFromOutcome(a.Name(), p.Capacity, out)
	// the store reports remaining tokens; the decision carries consumption
	d.CurrentValue = maxInt64(0, p.Capacity-out.Value)
	return d, nil
}
