package admission

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed scripts/counter.lua
var counterScriptSrc string

//go:embed scripts/fixed_window.lua
var fixedWindowScriptSrc string

//go:embed scripts/sliding_window.lua
var slidingWindowScriptSrc string

//go:embed scripts/token_bucket.lua
var tokenBucketScriptSrc string

//go:embed scripts/leaky_bucket.lua
var leakyBucketScriptSrc string

var (
	counterScript       = redis.NewScript(counterScriptSrc)
	fixedWindowScript   = redis.NewScript(fixedWindowScriptSrc)
	slidingWindowScript = redis.NewScript(slidingWindowScriptSrc)
	tokenBucketScript   = redis.NewScript(tokenBucketScriptSrc)
	leakyBucketScript   = redis.NewScript(leakyBucketScriptSrc)
)

// RedisStore shared storage. Each evaluation runs one Lua script, so the
// read-compute-write cycle is atomic across all process instances.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore creates Redis storage.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "admission:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// buildKey constructs the complete key.
func (s *RedisStore) buildKey(key string) string {
	return s.keyPrefix + key
}

// EvalCounter runs the counter script.
func (s *RedisStore) EvalCounter(ctx context.Context, key string, limit, periodMs, nowMs, weight int64) (Outcome, error) {
	return s.run(ctx, counterScript, key, limit, periodMs, nowMs, weight)
}

// EvalFixedWindow runs the fixed window script.
func (s *RedisStore) EvalFixedWindow(ctx context.Context, key string, limit, periodMs, nowMs, weight int64) (Outcome, error) {
	return s.run(ctx, fixedWindowScript, key, limit, periodMs, nowMs, weight)
}

// EvalSlidingWindow runs the sliding window script.
func (s *RedisStore) EvalSlidingWindow(ctx context.Context, key string, limit, periodMs, slices, nowMs, weight int64) (Outcome, error) {
	return s.run(ctx, slidingWindowScript, key, limit, periodMs, slices, nowMs, weight)
}

// EvalTokenBucket runs the token bucket script.
func (s *RedisStore) EvalTokenBucket(ctx context.Context, key string, capacity int64, refillRate float64, initTokens, nowMs, weight int64) (Outcome, error) {
	return s.run(ctx, tokenBucketScript, key, capacity, refillRate, initTokens, nowMs, weight)
}

// EvalLeakyBucket runs the leaky bucket script.
func (s *RedisStore) EvalLeakyBucket(ctx context.Context, key string, capacity int64, leakRate float64, nowMs, weight int64) (Outcome, error) {
	return s.run(ctx, leakyBucketScript, key, capacity, leakRate, nowMs, weight)
}

// run executes one script and decodes the 4-tuple reply.
func (s *RedisStore) run(ctx context.Context, script *redis.Script, key string, args ...interface{}) (Outcome, error) {
	res, err := script.Run(ctx, s.client, []string{s.buildKey(key)}, args...).Result()
	if err != nil {
		return Outcome{}, fmt.Errorf("admission script failed: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 4 {
		return Outcome{}, fmt.Errorf("unexpected script reply: %v", res)
	}

	return Outcome{
		Allowed:   toInt64(values[0]),
		Value:     toInt64(values[1]),
		ResetAtMs: toInt64(values[2]),
		Extra:     toInt64(values[3]),
	}, nil
}

// RankIncr bumps a ranking member and refreshes the key expiration.
func (s *RedisStore) RankIncr(ctx context.Context, key, member string, ttl time.Duration) (int64, error) {
	fullKey := s.buildKey(key)
	score, err := s.client.ZIncrBy(ctx, fullKey, 1, member).Result()
	if err != nil {
		return 0, err
	}
	if ttl > 0 {
		if err := s.client.PExpire(ctx, fullKey, ttl).Err(); err != nil {
			return 0, err
		}
	}
	return int64(score), nil
}

// RankTopN returns the n highest-score ranking members.
func (s *RedisStore) RankTopN(ctx context.Context, key string, n int64) ([]RankEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, s.buildKey(key), 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]RankEntry, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		entries = append(entries, RankEntry{Member: member, Count: int64(z.Score)})
	}
	return entries, nil
}

// Reset drops all state stored under key, including window-scoped subkeys.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	base := s.buildKey(key)
	if err := s.client.Del(ctx, base).Err(); err != nil {
		return err
	}

	iter := s.client.Scan(ctx, 0, base+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op: the client belongs to the redis manager.
func (s *RedisStore) Close() error {
	return nil
}

// toInt64 decodes a Lua reply number.
func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		var out int64
		_, _ = fmt.Sscan(n, &out)
		return out
	default:
		return 0
	}
}
