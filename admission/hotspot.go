package admission

import (
	"context"
	"time"

	"github.com/theo-thinker/music-server-admission/logger"
)

// HotspotConfig hotspot detector tuning.
type HotspotConfig struct {
	// Enabled turns the parameter-dimension override on
	Enabled bool `mapstructure:"enabled"`

	// Limit admissions one value may receive per Period before it counts
	// as hot
	Limit int64 `mapstructure:"limit"`

	// Period observation window
	Period time.Duration `mapstructure:"period"`

	// TopN ranking depth kept per operation and day
	TopN int64 `mapstructure:"top_n"`
}

// DefaultHotspotConfig returns the detector defaults.
func DefaultHotspotConfig() HotspotConfig {
	return HotspotConfig{
		Enabled: false,
		Limit:   50,
		Period:  time.Second,
		TopN:    10,
	}
}

// HotspotDetector tracks per-value access frequency for operations guarded
// along the parameter dimension, and keeps a per-day top-N ranking.
type HotspotDetector struct {
	store Store
	cfg   HotspotConfig
	log   *logger.CtxZapLogger
}

// NewHotspotDetector creates a detector over the shared store.
func NewHotspotDetector(store Store, cfg HotspotConfig, log *logger.CtxZapLogger) *HotspotDetector {
	def := DefaultHotspotConfig()
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Period <= 0 {
		cfg.Period = def.Period
	}
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &HotspotDetector{store: store, cfg: cfg, log: log}
}

// Check counts one access of value under operation and reports whether the
// value is currently hot. It also feeds the per-day ranking.
func (h *HotspotDetector) Check(ctx context.Context, operation, value string, now time.Time) (bool, error) {
	if !h.cfg.Enabled || value == "" {
		return false, nil
	}

	rankKey := "hotrank:" + operation + ":" + now.Format(dayKeyLayout)
	if _, err := h.store.RankIncr(ctx, rankKey, value, 48*time.Hour); err != nil {
		return false, err
	}

	counterKey := "hot:" + operation + ":" + value
	out, err := h.store.EvalCounter(ctx, counterKey, h.cfg.Limit,
		h.cfg.Period.Milliseconds(), now.UnixMilli(), 1)
	if err != nil {
		return false, err
	}

	// The value is hot once its own quota is exhausted.
	return out.Allowed == 0, nil
}

// TopN returns the most accessed values of an operation for one day.
func (h *HotspotDetector) TopN(ctx context.Context, operation string, day time.Time, n int64) ([]RankEntry, error) {
	if n <= 0 || n > h.cfg.TopN {
		n = h.cfg.TopN
	}
	rankKey := "hotrank:" + operation + ":" + day.Format(dayKeyLayout)
	return h.store.RankTopN(ctx, rankKey, n)
}
