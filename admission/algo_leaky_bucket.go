package admission

import (
	"context"
	"time"
)

// leakyBucketAlgorithm drains elapsed × rate from the current volume on every
// evaluation, then tries to add weight. A denial carries the wait in
// milliseconds until enough volume has drained.
type leakyBucketAlgorithm struct{}

// Name returns the algorithm name.
func (a *leakyBucketAlgorithm) Name() string {
	return string(AlgorithmLeakyBucket)
}

// Evaluate drains and fills the bucket in one atomic step.
func (a *leakyBucketAlgorithm) Evaluate(ctx context.Context, store Store, key string, p Params, now time.Time, weight int64) (*Decision, error) {
	if weight <= 0 {
		weight = 1
	}
	if p.LeakCap <= 0 || p.LeakRate <= 0 || now.IsZero() {
		return invalidParams(a.Name(), "leaky bucket requires capacity > 0 and leak rate > 0"), nil
	}

	out, err := store.EvalLeakyBucket(ctx, key, p.LeakCap, p.LeakRate, now.UnixMilli(), weight)
	if err != nil {
		return nil, err
	}

	// Tuple slot 4 is the wait hint for this algorithm, not the current value.
	d := decisionFromOutcome(a.Name(), p.LeakCap, out)
	d.WaitMs = out.Extra
	d.CurrentValue = maxInt64(0, p.LeakCap-out.Value)
	return d, nil
}
