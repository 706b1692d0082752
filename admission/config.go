package admission

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Fail modes applied when the shared store is unreachable.
const (
	// FailOpen admit the request when the store fails
	FailOpen = "open"

	// FailClosed deny the request when the store fails
	FailClosed = "closed"
)

// RedisConfig store selection for the redis backend.
type RedisConfig struct {
	// Instance name of the redis manager instance to use
	Instance string `mapstructure:"instance"`

	// KeyPrefix prepended to every stored key
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Config engine configuration.
type Config struct {
	// Enabled a disabled engine admits everything
	Enabled bool `mapstructure:"enabled"`

	// StoreType memory or redis
	StoreType string `mapstructure:"store_type"`

	// Redis backend settings, used when StoreType is redis
	Redis RedisConfig `mapstructure:"redis"`

	// FailMode open or closed; applied to store failures only
	FailMode string `mapstructure:"fail_mode"`

	// EvalTimeout upper bound for one store round-trip
	EvalTimeout time.Duration `mapstructure:"eval_timeout"`

	// EventBusBuffer event channel capacity
	EventBusBuffer int `mapstructure:"event_bus_buffer"`

	// Stats aggregator tuning
	Stats StatsConfig `mapstructure:"stats"`

	// Hotspot detector tuning
	Hotspot HotspotConfig `mapstructure:"hotspot"`

	// Metrics OpenTelemetry switches
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Policies declarative policies registered at startup, keyed by name
	Policies map[string]Policy `mapstructure:"policies"`
}

// DefaultConfig returns a runnable in-memory configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		StoreType:      string(StoreMemory),
		FailMode:       FailOpen,
		EvalTimeout:    100 * time.Millisecond,
		EventBusBuffer: 256,
		Stats:          DefaultStatsConfig(),
		Hotspot:        DefaultHotspotConfig(),
	}
}

// Validate checks the engine configuration.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.StoreType, validation.Required,
			validation.In(string(StoreMemory), string(StoreRedis))),
		validation.Field(&c.FailMode, validation.Required,
			validation.In(FailOpen, FailClosed)),
		validation.Field(&c.EvalTimeout, validation.Min(time.Millisecond)),
	)
	if err != nil {
		return &ValidationError{Resource: "admission", Err: err}
	}

	if StoreType(c.StoreType) == StoreRedis && c.Redis.Instance == "" {
		return &ValidationError{
			Resource: "admission",
			Field:    "redis.instance",
			Message:  "required when store_type is redis",
		}
	}

	for name, p := range c.Policies {
		merged := DefaultPolicy().Merge(p).withDefaults()
		if err := merged.Validate(); err != nil {
			return &ValidationError{Resource: "policy " + name, Err: err}
		}
	}
	return nil
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.StoreType == "" {
		c.StoreType = def.StoreType
	}
	if c.FailMode == "" {
		c.FailMode = def.FailMode
	}
	if c.EvalTimeout <= 0 {
		c.EvalTimeout = def.EvalTimeout
	}
	if c.EventBusBuffer <= 0 {
		c.EventBusBuffer = def.EventBusBuffer
	}
	return c
}
