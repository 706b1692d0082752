package admission

import (
	"context"
	"time"
)

// AlgorithmType admission algorithm identifier.
type AlgorithmType string

const (
	// AlgorithmCounter plain counter with explicit reset timestamp
	AlgorithmCounter AlgorithmType = "counter"

	// AlgorithmFixedWindow counter keyed by the aligned window start
	AlgorithmFixedWindow AlgorithmType = "fixed_window"

	// AlgorithmSlidingWindow period partitioned into slice counters
	AlgorithmSlidingWindow AlgorithmType = "sliding_window"

	// AlgorithmTokenBucket refilling bucket, supports bursts up to capacity
	AlgorithmTokenBucket AlgorithmType = "token_bucket"

	// AlgorithmLeakyBucket draining bucket, returns wait hints on overflow
	AlgorithmLeakyBucket AlgorithmType = "leaky_bucket"
)

// algorithmNames for validation rules.
func algorithmNames() []interface{} {
	return []interface{}{
		string(AlgorithmCounter), string(AlgorithmFixedWindow),
		string(AlgorithmSlidingWindow), string(AlgorithmTokenBucket),
		string(AlgorithmLeakyBucket),
	}
}

// Params resolved numeric parameters for one evaluation.
type Params struct {
	Limit      int64
	Period     time.Duration
	Capacity   int64         // token bucket
	RefillRate float64       // tokens per second
	LeakCap    int64         // leaky bucket
	LeakRate   float64       // drains per second
	Slices     int64         // sliding window
	Warmup     time.Duration // token bucket starts empty when > 0
}

// Algorithm admission algorithm interface (strategy pattern).
// Evaluate performs exactly one atomic round-trip against the store.
type Algorithm interface {
	// Evaluate checks whether weight units may be admitted under key at now.
	Evaluate(ctx context.Context, store Store, key string, p Params, now time.Time, weight int64) (*Decision, error)

	// Name returns the algorithm name
	Name() string
}

// GetAlgorithm returns the algorithm instance for a type, defaulting to the
// counter.
func GetAlgorithm(t AlgorithmType) Algorithm {
	switch t {
	case AlgorithmFixedWindow:
		return &fixedWindowAlgorithm{}
	case AlgorithmSlidingWindow:
		return &slidingWindowAlgorithm{}
	case AlgorithmTokenBucket:
		return &tokenBucketAlgorithm{}
	case AlgorithmLeakyBucket:
		return &leakyBucketAlgorithm{}
	default:
		return &counterAlgorithm{}
	}
}

// invalidParams builds the deterministic deny returned for malformed
// parameters instead of raising. The engine logs it as a config warning.
func invalidParams(name, msg string) *Decision {
	return &Decision{
		Allowed:   false,
		Remaining: 0,
		Strategy:  name,
		ErrorCode: CodeInvalidParams,
		Message:   msg,
	}
}

// decisionFromOutcome maps a store tuple to a Decision.
func decisionFromOutcome(name string, limit int64, out Outcome) *Decision {
	d := &Decision{
		Allowed:      out.Allowed == 1,
		Remaining:    out.Value,
		Limit:        limit,
		CurrentValue: out.Extra,
		Strategy:     name,
	}
	if out.ResetAtMs > 0 {
		d.ResetAt = time.UnixMilli(out.ResetAtMs)
	}
	return d
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
