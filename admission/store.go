package admission

import (
	"context"
	"time"
)

// Outcome raw result tuple of one atomic evaluation:
// [allowed(0|1), remaining_or_volume, reset_or_next_event_ms, extra].
// Extra is the current count for most algorithms and the wait in
// milliseconds for the leaky bucket.
type Outcome struct {
	Allowed   int64
	Value     int64
	ResetAtMs int64
	Extra     int64
}

// RankEntry one member of a hotspot ranking.
type RankEntry struct {
	Member string
	Count  int64
}

// Store executes admission state transitions. Every Eval* call MUST be a
// single atomic operation against the shared state: the invoking processes
// run concurrently and independently, so no client-side read-modify-write
// sequence is acceptable.
type Store interface {
	// EvalCounter counter with explicit reset timestamp
	EvalCounter(ctx context.Context, key string, limit, periodMs, nowMs, weight int64) (Outcome, error)

	// EvalFixedWindow increment-and-compare on a window-scoped key
	EvalFixedWindow(ctx context.Context, key string, limit, periodMs, nowMs, weight int64) (Outcome, error)

	// EvalSlidingWindow slice counters summed over the trailing period
	EvalSlidingWindow(ctx context.Context, key string, limit, periodMs, slices, nowMs, weight int64) (Outcome, error)

	// EvalTokenBucket refill then take
	EvalTokenBucket(ctx context.Context, key string, capacity int64, refillRate float64, initTokens, nowMs, weight int64) (Outcome, error)

	// EvalLeakyBucket drain then fill
	EvalLeakyBucket(ctx context.Context, key string, capacity int64, leakRate float64, nowMs, weight int64) (Outcome, error)

	// RankIncr bumps a member in a ranking and refreshes its expiration
	RankIncr(ctx context.Context, key, member string, ttl time.Duration) (int64, error)

	// RankTopN returns the n highest-count members of a ranking
	RankTopN(ctx context.Context, key string, n int64) ([]RankEntry, error)

	// Reset drops all state stored under key (including window-scoped subkeys)
	Reset(ctx context.Context, key string) error

	// Ping checks store reachability
	Ping(ctx context.Context) error

	// Close releases the store's resources
	Close() error
}

// StoreType storage type.
type StoreType string

const (
	// StoreMemory in-process storage, single instance only
	StoreMemory StoreType = "memory"

	// StoreRedis shared storage, correct across process instances
	StoreRedis StoreType = "redis"
)
