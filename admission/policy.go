package admission

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Policy declarative description of how one operation is limited.
// Immutable once registered; attach it per guarded operation.
type Policy struct {
	// Key literal limiter key or a template with #{field} markers.
	// Empty means "use the operation's own identity".
	Key string `mapstructure:"key"`

	// Limit maximum admissions per period
	Limit int64 `mapstructure:"limit"`

	// Period number of TimeUnit units (e.g. Period=30, TimeUnit=second)
	Period int64 `mapstructure:"period"`

	// TimeUnit millisecond, second, minute, hour or day (default second)
	TimeUnit string `mapstructure:"time_unit"`

	// Algorithm counter, fixed_window, sliding_window, token_bucket, leaky_bucket
	Algorithm string `mapstructure:"algorithm"`

	// Dimension axis the quota is tracked along
	Dimension string `mapstructure:"dimension"`

	// Enabled disabled policies bypass admission entirely.
	// Unset means enabled, so a policy never silently switches itself off.
	Enabled *bool `mapstructure:"enabled"`

	// Message returned to the caller on denial
	Message string `mapstructure:"message"`

	// ErrorCode numeric code returned on denial (0 = default code)
	ErrorCode int `mapstructure:"error_code"`

	// Async record statistics off the hot path
	Async bool `mapstructure:"async"`

	// WarmupPeriod token bucket starts empty and fills over this period
	WarmupPeriod time.Duration `mapstructure:"warmup_period"`

	// Algorithm-specific overrides, 0 means built-in default
	BucketCapacity      int64   `mapstructure:"bucket_capacity"`       // token bucket
	RefillRate          float64 `mapstructure:"refill_rate"`           // tokens per second
	LeakyBucketCapacity int64   `mapstructure:"leaky_bucket_capacity"` // leaky bucket
	LeakRate            float64 `mapstructure:"leak_rate"`             // drains per second
	WindowSlices        int64   `mapstructure:"window_slices"`         // sliding window

	// KeyGenerator name of a registered generator (dimension custom)
	KeyGenerator string `mapstructure:"key_generator"`

	// EnableLog log every decision of this policy
	EnableLog bool `mapstructure:"enable_log"`

	// Order interceptor ordering hint when several policies guard one operation
	Order int `mapstructure:"order"`

	// Condition guard expression; false or failing means the policy is skipped
	Condition string `mapstructure:"condition"`

	// FallbackOperation name of a registered handler invoked on denial
	FallbackOperation string `mapstructure:"fallback_operation"`

	// IgnoreOnLimit swallow the denial instead of raising
	IgnoreOnLimit bool `mapstructure:"ignore_on_limit"`

	// Group alert category for statistics
	Group string `mapstructure:"group"`

	// Properties free-form extension values
	Properties map[string]string `mapstructure:"properties"`
}

// Per-algorithm built-in defaults, applied when a policy leaves a field at 0.
const (
	DefaultLimit        = int64(100)
	DefaultPeriod       = time.Minute
	DefaultCapacity     = int64(100)
	DefaultRefillRate   = float64(10) // tokens per second
	DefaultLeakRate     = float64(10) // drains per second
	DefaultWindowSlices = int64(10)
)

// DefaultPolicy returns a usable baseline: a minimal policy only has to pick
// an algorithm.
func DefaultPolicy() Policy {
	return Policy{
		Algorithm: string(AlgorithmCounter),
		Dimension: string(DimensionOperation),
		TimeUnit:  "second",
		Enabled:   Bool(true),
	}
}

// Bool returns a pointer to v, for the optional policy flags.
func Bool(v bool) *bool {
	return &v
}

// IsEnabled reports whether the policy takes part in admission. An unset
// Enabled counts as enabled.
func (p *Policy) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// EffectivePeriod resolves Period × TimeUnit; zero Period falls back to the
// built-in default.
func (p *Policy) EffectivePeriod() time.Duration {
	if p.Period <= 0 {
		return DefaultPeriod
	}
	unit := time.Second
	switch p.TimeUnit {
	case "millisecond", "ms":
		unit = time.Millisecond
	case "", "second", "s":
		unit = time.Second
	case "minute", "m":
		unit = time.Minute
	case "hour", "h":
		unit = time.Hour
	case "day", "d":
		unit = 24 * time.Hour
	}
	return time.Duration(p.Period) * unit
}

// DimensionT returns the typed dimension, defaulting to operation.
func (p *Policy) DimensionT() Dimension {
	if p.Dimension == "" {
		return DimensionOperation
	}
	return Dimension(p.Dimension)
}

// Merge overlays the non-zero fields of override onto p.
// Boolean flags are copied verbatim from override.
func (p Policy) Merge(override Policy) Policy {
	result := p

	if override.Key != "" {
		result.Key = override.Key
	}
	if override.Limit > 0 {
		result.Limit = override.Limit
	}
	if override.Period > 0 {
		result.Period = override.Period
	}
	if override.TimeUnit != "" {
		result.TimeUnit = override.TimeUnit
	}
	if override.Algorithm != "" {
		result.Algorithm = override.Algorithm
	}
	if override.Dimension != "" {
		result.Dimension = override.Dimension
	}
	if override.Message != "" {
		result.Message = override.Message
	}
	if override.ErrorCode != 0 {
		result.ErrorCode = override.ErrorCode
	}
	if override.WarmupPeriod > 0 {
		result.WarmupPeriod = override.WarmupPeriod
	}
	if override.BucketCapacity > 0 {
		result.BucketCapacity = override.BucketCapacity
	}
	if override.RefillRate > 0 {
		result.RefillRate = override.RefillRate
	}
	if override.LeakyBucketCapacity > 0 {
		result.LeakyBucketCapacity = override.LeakyBucketCapacity
	}
	if override.LeakRate > 0 {
		result.LeakRate = override.LeakRate
	}
	if override.WindowSlices > 0 {
		result.WindowSlices = override.WindowSlices
	}
	if override.KeyGenerator != "" {
		result.KeyGenerator = override.KeyGenerator
	}
	if override.Order != 0 {
		result.Order = override.Order
	}
	if override.Condition != "" {
		result.Condition = override.Condition
	}
	if override.FallbackOperation != "" {
		result.FallbackOperation = override.FallbackOperation
	}
	if override.Group != "" {
		result.Group = override.Group
	}
	if len(override.Properties) > 0 {
		result.Properties = override.Properties
	}

	// Enabled only overrides when the caller actually set it; a minimal
	// policy must not end up disabled.
	if override.Enabled != nil {
		result.Enabled = override.Enabled
	}

	result.Async = override.Async
	result.EnableLog = override.EnableLog
	result.IgnoreOnLimit = override.IgnoreOnLimit

	return result
}

// withDefaults fills unset numeric fields with the algorithm defaults so a
// minimal policy is directly evaluable.
func (p Policy) withDefaults() Policy {
	if p.Algorithm == "" {
		p.Algorithm = string(AlgorithmCounter)
	}
	if p.Dimension == "" {
		p.Dimension = string(DimensionOperation)
	}
	if p.Enabled == nil {
		p.Enabled = Bool(true)
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	switch AlgorithmType(p.Algorithm) {
	case AlgorithmTokenBucket:
		if p.BucketCapacity <= 0 {
			p.BucketCapacity = DefaultCapacity
		}
		if p.RefillRate <= 0 {
			p.RefillRate = DefaultRefillRate
		}
	case AlgorithmLeakyBucket:
		if p.LeakyBucketCapacity <= 0 {
			p.LeakyBucketCapacity = DefaultCapacity
		}
		if p.LeakRate <= 0 {
			p.LeakRate = DefaultLeakRate
		}
	case AlgorithmSlidingWindow:
		if p.WindowSlices <= 0 {
			p.WindowSlices = DefaultWindowSlices
		}
	}
	return p
}

// Validate checks internal consistency. Called at registration time; fields
// belonging to another algorithm are ignored, not rejected.
func (p *Policy) Validate() error {
	err := validation.ValidateStruct(p,
		validation.Field(&p.Limit, validation.Min(int64(1))),
		validation.Field(&p.Algorithm, validation.Required,
			validation.In(algorithmNames()...)),
		validation.Field(&p.Dimension, validation.Required,
			validation.In(dimensionNames()...)),
	)
	if err != nil {
		return &ValidationError{Err: err}
	}

	if p.EffectivePeriod() <= 0 {
		return &ValidationError{Field: "period", Message: "must be > 0"}
	}

	// Nonzero algorithm-specific overrides must be positive.
	switch AlgorithmType(p.Algorithm) {
	case AlgorithmTokenBucket:
		if p.BucketCapacity < 0 {
			return &ValidationError{Field: "bucket_capacity", Message: "must be > 0"}
		}
		if p.RefillRate < 0 {
			return &ValidationError{Field: "refill_rate", Message: "must be > 0"}
		}
	case AlgorithmLeakyBucket:
		if p.LeakyBucketCapacity < 0 {
			return &ValidationError{Field: "leaky_bucket_capacity", Message: "must be > 0"}
		}
		if p.LeakRate < 0 {
			return &ValidationError{Field: "leak_rate", Message: "must be > 0"}
		}
	case AlgorithmSlidingWindow:
		if p.WindowSlices < 0 {
			return &ValidationError{Field: "window_slices", Message: "must be > 0"}
		}
	}

	if p.DimensionT() == DimensionCustom && p.KeyGenerator == "" {
		return &ValidationError{Field: "key_generator", Message: "required for custom dimension"}
	}

	return nil
}

// params builds the algorithm parameters from a defaulted policy.
func (p *Policy) params() Params {
	return Params{
		Limit:      p.Limit,
		Period:     p.EffectivePeriod(),
		Capacity:   p.BucketCapacity,
		RefillRate: p.RefillRate,
		LeakCap:    p.LeakyBucketCapacity,
		LeakRate:   p.LeakRate,
		Slices:     p.WindowSlices,
		Warmup:     p.WarmupPeriod,
	}
}
