package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/theo-thinker/music-server-admission/logger"
)

// Engine evaluates admission policies against the shared store and carries
// the surrounding machinery: key building, hotspot detection, statistics,
// events and metrics.
type Engine struct {
	cfg Config
	log *logger.CtxZapLogger

	store     Store
	keys      *KeyBuilder
	eval      Evaluator
	fallbacks *FallbackRegistry
	stats     *Aggregator
	hotspot   *HotspotDetector
	events    EventBus
	metrics   *OTelMetrics

	mu       sync.RWMutex
	policies map[string]Policy

	closeOnce sync.Once
}

// NewEngine creates an engine with a no-op logger. redisClient may be nil
// for the memory store.
func NewEngine(cfg Config, redisClient *goredis.Client) (*Engine, error) {
	return NewEngineWithLogger(cfg, nil, redisClient)
}

// NewEngineWithLogger creates an engine.
func NewEngineWithLogger(cfg Config, log *logger.CtxZapLogger, redisClient *goredis.Client) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	var store Store
	switch StoreType(cfg.StoreType) {
	case StoreRedis:
		if redisClient == nil {
			return nil, &ValidationError{
				Resource: "admission",
				Field:    "redis",
				Message:  "redis store selected but no client provided",
			}
		}
		store = NewRedisStore(redisClient, cfg.Redis.KeyPrefix)
	default:
		store = NewMemoryStore()
	}

	stats, err := NewAggregator(cfg.Stats, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	eval := NewTemplateEvaluator()

	e := &Engine{
		cfg:       cfg,
		log:       log,
		store:     store,
		keys:      NewKeyBuilder(eval, log),
		eval:      eval,
		fallbacks: NewFallbackRegistry(),
		stats:     stats,
		hotspot:   NewHotspotDetector(store, cfg.Hotspot, log),
		events:    NewEventBus(cfg.EventBusBuffer),
		metrics:   NewOTelMetrics(cfg.Metrics),
		policies:  make(map[string]Policy),
	}

	for name, p := range cfg.Policies {
		if err := e.RegisterPolicy(name, p); err != nil {
			e.close()
			return nil, fmt.Errorf("policy %q: %w", name, err)
		}
	}

	return e, nil
}

// RegisterPolicy validates and stores a named policy. Defaults are applied
// before validation, so a minimal policy registers cleanly.
func (e *Engine) RegisterPolicy(name string, p Policy) error {
	merged := DefaultPolicy().Merge(p).withDefaults()
	if err := merged.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	e.policies[name] = merged
	e.mu.Unlock()
	return nil
}

// GetPolicy returns a registered policy.
func (e *Engine) GetPolicy(name string) (Policy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.policies[name]
	return p, ok
}

// PolicyNames lists all registered policy names.
func (e *Engine) PolicyNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	return names
}

// RegisterFallback registers a named fallback operation.
func (e *Engine) RegisterFallback(name string, op Operation) {
	e.fallbacks.Register(name, op)
}

// RegisterKeyGenerator registers a named generator for the custom dimension.
func (e *Engine) RegisterKeyGenerator(name string, fn KeyGeneratorFunc) {
	e.keys.RegisterGenerator(name, fn)
}

// Subscribe registers an event listener.
func (e *Engine) Subscribe(listener EventListener) {
	e.events.Subscribe(listener)
}

// Stats exposes the aggregator for read access.
func (e *Engine) Stats() *Aggregator {
	return e.stats
}

// Hotspot exposes the detector for read access.
func (e *Engine) Hotspot() *HotspotDetector {
	return e.hotspot
}

// Metrics exposes the OTel provider for meter registration.
func (e *Engine) Metrics() *OTelMetrics {
	return e.metrics
}

// IsEnabled reports whether the engine evaluates anything at all.
func (e *Engine) IsEnabled() bool {
	return e.cfg.Enabled
}

// Evaluate evaluates a registered policy by name.
func (e *Engine) Evaluate(ctx context.Context, policyName string, rc *RequestContext) (*Decision, error) {
	p, ok := e.GetPolicy(policyName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPolicyNotFound, policyName)
	}
	return e.evaluate(ctx, policyName, p, rc), nil
}

// EvaluatePolicy evaluates an ad hoc policy without registering it.
func (e *Engine) EvaluatePolicy(ctx context.Context, p Policy, rc *RequestContext) *Decision {
	merged := DefaultPolicy().Merge(p).withDefaults()
	return e.evaluate(ctx, merged.Key, merged, rc)
}

// bypass builds the terminal allow decision for disabled or skipped
// policies. Bypasses never touch the store and never enter statistics.
func bypass(p *Policy) *Decision {
	return &Decision{
		Allowed:  true,
		Strategy: p.Algorithm,
		Limit:    p.Limit,
	}
}

// evaluate runs the full decision flow for one request.
func (e *Engine) evaluate(ctx context.Context, name string, p Policy, rc *RequestContext) *Decision {
	if !e.cfg.Enabled || !p.IsEnabled() {
		return bypass(&p)
	}

	// Guard condition: failures skip the policy instead of failing the call.
	if p.Condition != "" {
		result, err := e.eval.Evaluate(p.Condition, rc.ContextMap())
		if err != nil {
			e.log.WarnCtx(ctx, "guard condition failed, skipping policy",
				zap.String("policy", name),
				zap.String("condition", p.Condition),
				zap.Error(err))
			return bypass(&p)
		}
		if !truthy(result) {
			return bypass(&p)
		}
	}

	now := rc.At()
	weight := rc.EffectiveWeight()

	key, err := e.keys.Build(&p, rc)
	if err != nil {
		e.log.WarnCtx(ctx, "key generation failed, skipping policy",
			zap.String("policy", name),
			zap.Error(err))
		return bypass(&p)
	}

	alg := GetAlgorithm(AlgorithmType(p.Algorithm))

	evalCtx := ctx
	if e.cfg.EvalTimeout > 0 {
		var cancel context.CancelFunc
		evalCtx, cancel = context.WithTimeout(ctx, e.cfg.EvalTimeout)
		defer cancel()
	}

	d, err := alg.Evaluate(evalCtx, e.store, key, p.params(), now, weight)
	if err != nil {
		return e.onStoreError(ctx, name, &p, key, alg.Name(), now, err)
	}
	d.Key = key

	if d.ErrorCode == CodeInvalidParams {
		e.log.WarnCtx(ctx, "invalid algorithm parameters, denying",
			zap.String("policy", name),
			zap.String("strategy", d.Strategy),
			zap.String("reason", d.Message))
	}

	// Hotspot override: an admitted request may still be denied when its
	// parameter value is currently hot.
	if d.Allowed && p.DimensionT() == DimensionParameter && e.cfg.Hotspot.Enabled {
		hot, herr := e.hotspot.Check(ctx, rc.Operation, rc.HotspotValue(), now)
		if herr != nil {
			e.log.WarnCtx(ctx, "hotspot check failed, ignoring",
				zap.String("policy", name),
				zap.Error(herr))
		} else if hot {
			d.Allowed = false
			d.Hotspot = true
			d.Remaining = 0
		}
	}

	if !d.Allowed {
		if d.Message == "" {
			d.Message = p.Message
		}
		if d.ErrorCode == 0 {
			switch {
			case p.ErrorCode != 0:
				d.ErrorCode = p.ErrorCode
			case d.Hotspot:
				d.ErrorCode = ErrHotspotDenied.Code()
			default:
				d.ErrorCode = ErrDenied.Code()
			}
		}
	}

	e.record(ctx, name, &p, d, now)

	if p.EnableLog {
		e.log.InfoCtx(ctx, "admission decision",
			zap.String("policy", name),
			zap.String("key", d.Key),
			zap.String("strategy", d.Strategy),
			zap.Bool("allowed", d.Allowed),
			zap.Int64("remaining", d.Remaining),
			zap.Bool("hotspot", d.Hotspot))
	}

	return d
}

// onStoreError applies the fail mode to an infrastructure failure. The
// outcome is always a decision; the error never propagates to the caller.
func (e *Engine) onStoreError(ctx context.Context, name string, p *Policy, key, strategy string, now time.Time, err error) *Decision {
	e.log.ErrorCtx(ctx, "admission store failed",
		zap.String("policy", name),
		zap.String("key", key),
		zap.String("fail_mode", e.cfg.FailMode),
		zap.Error(err))

	e.stats.RecordError(key, strategy, now)
	e.metrics.RecordError(ctx, name, strategy)

	ev := &StoreErrorEvent{
		BaseEvent: NewBaseEvent(EventStoreError, name, ctx),
		Key:       key,
		Err:       err,
	}
	e.events.Publish(ev)

	if e.cfg.FailMode == FailClosed {
		return &Decision{
			Allowed:   false,
			Key:       key,
			Strategy:  strategy,
			ErrorCode: ErrStoreUnavailable.Code(),
			Message:   ErrStoreUnavailable.Message(),
		}
	}
	return &Decision{
		Allowed:  true,
		Key:      key,
		Strategy: strategy,
	}
}

// record feeds statistics, events and metrics with one decision.
func (e *Engine) record(ctx context.Context, name string, p *Policy, d *Decision, now time.Time) {
	if p.Async {
		e.stats.RecordAsync(d, p.Group, now)
	} else {
		e.stats.Record(d, p.Group, now)
	}

	e.metrics.Record(ctx, name, d)

	if d.Allowed {
		e.events.Publish(&AllowedEvent{
			BaseEvent: NewBaseEvent(EventAllowed, name, ctx),
			Remaining: d.Remaining,
			Limit:     d.Limit,
		})
		return
	}

	eventType := EventDenied
	if d.Hotspot {
		eventType = EventHotspot
	}
	e.events.Publish(&DeniedEvent{
		BaseEvent: NewBaseEvent(eventType, name, ctx),
		Remaining: d.Remaining,
		ResetAt:   d.ResetAt,
		Hotspot:   d.Hotspot,
		Reason:    d.Message,
	})
}

// Guard wraps an operation with a registered policy. The returned handler
// applies the deny-path semantics: fallback, ignore or error.
func (e *Engine) Guard(policyName string, op Operation) *Handler {
	return &Handler{
		engine: e,
		policy: policyName,
		op:     op,
	}
}

// Reset clears all stored state for one limiter key.
func (e *Engine) Reset(ctx context.Context, key string) error {
	return e.store.Reset(ctx, key)
}

// Ping checks the shared store.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// Close releases the store, the aggregator and the event bus.
func (e *Engine) Close() error {
	e.close()
	return nil
}

// Shutdown implements the container shutdown hook.
func (e *Engine) Shutdown() error {
	return e.Close()
}

func (e *Engine) close() {
	e.closeOnce.Do(func() {
		e.events.Close()
		_ = e.stats.Close()
		_ = e.store.Close()
	})
}
