package admission

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore in-process storage. Transitions run under one mutex, which
// makes every evaluation atomic within this process; it mirrors the Redis
// scripts exactly but cannot coordinate across instances.
type MemoryStore struct {
	mu sync.Mutex

	counters map[string]*counterState
	windows  map[string]*windowState
	buckets  map[string]*bucketState
	leaks    map[string]*leakState
	ranks    map[string]*rankState

	closeOnce sync.Once
	closed    chan struct{}
}

type counterState struct {
	count    int64
	resetAt  int64
	expireAt int64
}

type windowState struct {
	slices   map[int64]int64
	expireAt int64
}

type bucketState struct {
	tokens   float64
	last     int64
	expireAt int64
}

type leakState struct {
	volume   float64
	last     int64
	expireAt int64
}

type rankState struct {
	counts   map[string]int64
	expireAt int64
}

// NewMemoryStore creates in-memory storage and starts the expiration sweeper.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		counters: make(map[string]*counterState),
		windows:  make(map[string]*windowState),
		buckets:  make(map[string]*bucketState),
		leaks:    make(map[string]*leakState),
		ranks:    make(map[string]*rankState),
		closed:   make(chan struct{}),
	}
	go s.sweep()
	return s
}

// EvalCounter mirrors scripts/counter.lua.
func (s *MemoryStore) EvalCounter(ctx context.Context, key string, limit, periodMs, nowMs, weight int64) (Outcome, error) {
	if limit <= 0 || periodMs <= 0 || nowMs <= 0 || weight <= 0 {
		return Outcome{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.counters[key]
	if st == nil || st.expireAt <= nowMs {
		st = &counterState{}
		s.counters[key] = st
	}

	if st.resetAt == 0 || nowMs >= st.resetAt {
		st.count = 0
		st.resetAt = nowMs + periodMs
	}

	var allowed int64
	if st.count+weight <= limit {
		st.count += weight
		allowed = 1
	}

	st.expireAt = st.resetAt + periodMs

	return Outcome{
		Allowed:   allowed,
		Value:     maxInt64(0, limit-st.count),
		ResetAtMs: st.resetAt,
		Extra:     st.count,
	}, nil
}

// EvalFixedWindow mirrors scripts/fixed_window.lua; the key already carries
// the window start.
func (s *MemoryStore) EvalFixedWindow(ctx context.Context, key string, limit, periodMs, nowMs, weight int64) (Outcome, error) {
	if limit <= 0 || periodMs <= 0 || nowMs <= 0 || weight <= 0 {
		return Outcome{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.counters[key]
	if st == nil || st.expireAt <= nowMs {
		st = &counterState{expireAt: nowMs + periodMs*2}
		s.counters[key] = st
	}

	var allowed int64
	if st.count+weight <= limit {
		st.count += weight
		allowed = 1
	}

	windowStart := nowMs - nowMs%periodMs

	return Outcome{
		Allowed:   allowed,
		Value:     maxInt64(0, limit-st.count),
		ResetAtMs: windowStart + periodMs,
		Extra:     st.count,
	}, nil
}

// EvalSlidingWindow mirrors scripts/sliding_window.lua.
func (s *MemoryStore) EvalSlidingWindow(ctx context.Context, key string, limit, periodMs, slices, nowMs, weight int64) (Outcome, error) {
	if limit <= 0 || periodMs <= 0 || slices <= 0 || nowMs <= 0 || weight <= 0 {
		return Outcome{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.windows[key]
	if st == nil || st.expireAt <= nowMs {
		st = &windowState{slices: make(map[int64]int64)}
		s.windows[key] = st
	}

	sliceMs := periodMs / slices
	if sliceMs <= 0 {
		sliceMs = 1
	}

	cur := nowMs / sliceMs
	oldest := int64(math.Ceil(float64(nowMs-periodMs) / float64(sliceMs)))

	var total int64
	minIdx := cur
	for idx, count := range st.slices {
		if idx < oldest {
			delete(st.slices, idx)
			continue
		}
		total += count
		if idx < minIdx {
			minIdx = idx
		}
	}

	var allowed int64
	if total+weight <= limit {
		st.slices[cur] += weight
		total += weight
		allowed = 1
	}

	st.expireAt = nowMs + periodMs*2

	return Outcome{
		Allowed:   allowed,
		Value:     maxInt64(0, limit-total),
		ResetAtMs: minIdx*sliceMs + periodMs,
		Extra:     total,
	}, nil
}

// EvalTokenBucket mirrors scripts/token_bucket.lua.
func (s *MemoryStore) EvalTokenBucket(ctx context.Context, key string, capacity int64, refillRate float64, initTokens, nowMs, weight int64) (Outcome, error) {
	if capacity <= 0 || refillRate <= 0 || initTokens < 0 || nowMs <= 0 || weight <= 0 {
		return Outcome{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.buckets[key]
	if st == nil || st.expireAt <= nowMs {
		st = &bucketState{tokens: float64(initTokens), last: nowMs}
		s.buckets[key] = st
	} else if elapsed := nowMs - st.last; elapsed > 0 {
		st.tokens = math.Min(float64(capacity), st.tokens+float64(elapsed)*refillRate/1000)
		st.last = nowMs
	}

	var allowed int64
	if st.tokens >= float64(weight) {
		st.tokens -= float64(weight)
		allowed = 1
	}

	ttl := int64(math.Ceil(float64(capacity)/refillRate*1000)) * 2
	if ttl < 1000 {
		ttl = 1000
	}
	st.expireAt = nowMs + ttl

	var reset int64
	if allowed == 1 {
		reset = nowMs + int64(math.Ceil((float64(capacity)-st.tokens)/refillRate*1000))
	} else {
		reset = nowMs + int64(math.Ceil((float64(weight)-st.tokens)/refillRate*1000))
	}

	floored := int64(math.Floor(st.tokens))
	return Outcome{
		Allowed:   allowed,
		Value:     floored,
		ResetAtMs: reset,
		Extra:     floored,
	}, nil
}

// EvalLeakyBucket mirrors scripts/leaky_bucket.lua.
func (s *MemoryStore) EvalLeakyBucket(ctx context.Context, key string, capacity int64, leakRate float64, nowMs, weight int64) (Outcome, error) {
	if capacity <= 0 || leakRate <= 0 || nowMs <= 0 || weight <= 0 {
		return Outcome{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.leaks[key]
	if st == nil || st.expireAt <= nowMs {
		st = &leakState{volume: 0, last: nowMs}
		s.leaks[key] = st
	} else if elapsed := nowMs - st.last; elapsed > 0 {
		st.volume = math.Max(0, st.volume-float64(elapsed)*leakRate/1000)
		st.last = nowMs
	}

	var allowed, wait int64
	if st.volume+float64(weight) <= float64(capacity) {
		st.volume += float64(weight)
		allowed = 1
	} else {
		wait = int64(math.Ceil((st.volume + float64(weight) - float64(capacity)) / leakRate * 1000))
	}

	ttl := int64(math.Ceil(float64(capacity)/leakRate*1000)) * 2
	if ttl < 1000 {
		ttl = 1000
	}
	st.expireAt = nowMs + ttl

	return Outcome{
		Allowed:   allowed,
		Value:     maxInt64(0, int64(math.Floor(float64(capacity)-st.volume))),
		ResetAtMs: nowMs + int64(math.Ceil(st.volume/leakRate*1000)),
		Extra:     wait,
	}, nil
}

// RankIncr bumps a ranking member.
func (s *MemoryStore) RankIncr(ctx context.Context, key, member string, ttl time.Duration) (int64, error) {
	nowMs := time.Now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.ranks[key]
	if st == nil || st.expireAt <= nowMs {
		st = &rankState{counts: make(map[string]int64)}
		s.ranks[key] = st
	}
	st.counts[member]++
	if ttl > 0 {
		st.expireAt = nowMs + ttl.Milliseconds()
	} else {
		st.expireAt = math.MaxInt64
	}
	return st.counts[member], nil
}

// RankTopN returns the n highest-count members.
func (s *MemoryStore) RankTopN(ctx context.Context, key string, n int64) ([]RankEntry, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.ranks[key]
	if st == nil {
		return nil, nil
	}

	entries := make([]RankEntry, 0, len(st.counts))
	for member, count := range st.counts {
		entries = append(entries, RankEntry{Member: member, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Member < entries[j].Member
	})

	if int64(len(entries)) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// Reset drops all state stored under key, including window-scoped subkeys.
func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := key + ":"
	for k := range s.counters {
		if k == key || strings.HasPrefix(k, prefix) {
			delete(s.counters, k)
		}
	}
	delete(s.windows, key)
	delete(s.buckets, key)
	delete(s.leaks, key)
	delete(s.ranks, key)
	return nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close stops the expiration sweeper.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	return nil
}

// sweep removes expired entries once a minute to bound memory.
func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			nowMs := time.Now().UnixMilli()
			s.mu.Lock()
			for k, st := range s.counters {
				if st.expireAt <= nowMs {
					delete(s.counters, k)
				}
			}
			for k, st := range s.windows {
				if st.expireAt <= nowMs {
					delete(s.windows, k)
				}
			}
			for k, st := range s.buckets {
				if st.expireAt <= nowMs {
					delete(s.buckets, k)
				}
			}
			for k, st := range s.leaks {
				if st.expireAt <= nowMs {
					delete(s.leaks, k)
				}
			}
			for k, st := range s.ranks {
				if st.expireAt <= nowMs {
					delete(s.ranks, k)
				}
			}
			s.mu.Unlock()
		}
	}
}
