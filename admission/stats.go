package admission

import (
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/theo-thinker/music-server-admission/logger"
)

// BucketType statistics bucket granularity.
type BucketType string

const (
	// BucketHour hourly bucket, keyed yyyymmddHH
	BucketHour BucketType = "hour"

	// BucketDay daily bucket, keyed yyyymmdd
	BucketDay BucketType = "day"
)

const (
	hourKeyLayout = "2006010215"
	dayKeyLayout  = "20060102"
)

// Alert one denial recorded under a policy group for later inspection.
type Alert struct {
	Category string
	Key      string
	Strategy string
	Message  string
	At       time.Time
}

// StatBucket counters accumulated for one time bucket.
// Invariant: Allowed + Blocked <= Total (store errors count only as errors).
type StatBucket struct {
	Total   int64
	Allowed int64
	Blocked int64
	Hotspot int64
	Errors  int64

	PerStrategy map[string]int64
	PerKey      map[string]int64

	Alerts []Alert

	createdAt time.Time
}

func newStatBucket(now time.Time) *StatBucket {
	return &StatBucket{
		PerStrategy: make(map[string]int64),
		PerKey:      make(map[string]int64),
		createdAt:   now,
	}
}

func (b *StatBucket) clone() *StatBucket {
	out := newStatBucket(b.createdAt)
	out.Total = b.Total
	out.Allowed = b.Allowed
	out.Blocked = b.Blocked
	out.Hotspot = b.Hotspot
	out.Errors = b.Errors
	for k, v := range b.PerStrategy {
		out.PerStrategy[k] = v
	}
	for k, v := range b.PerKey {
		out.PerKey[k] = v
	}
	out.Alerts = append(out.Alerts, b.Alerts...)
	return out
}

// StatsConfig aggregator tuning.
type StatsConfig struct {
	// Workers size of the async recording pool
	Workers int `mapstructure:"workers"`

	// FlushInterval how often expired buckets are pruned
	FlushInterval time.Duration `mapstructure:"flush_interval"`

	// Retention how long finished buckets are kept
	Retention time.Duration `mapstructure:"retention"`

	// AlertsPerBucket cap on stored alerts per bucket
	AlertsPerBucket int `mapstructure:"alerts_per_bucket"`
}

// DefaultStatsConfig returns the aggregator defaults.
func DefaultStatsConfig() StatsConfig {
	return StatsConfig{
		Workers:         8,
		FlushInterval:   10 * time.Minute,
		Retention:       48 * time.Hour,
		AlertsPerBucket: 100,
	}
}

// Aggregator accumulates admission decisions into hour and day buckets.
type Aggregator struct {
	cfg StatsConfig
	log *logger.CtxZapLogger

	mu   sync.RWMutex
	hour map[string]*StatBucket
	day  map[string]*StatBucket

	pool      *ants.Pool
	scheduler gocron.Scheduler

	closeOnce sync.Once
}

// NewAggregator creates the aggregator and starts the retention flush job.
func NewAggregator(cfg StatsConfig, log *logger.CtxZapLogger) (*Aggregator, error) {
	def := DefaultStatsConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.AlertsPerBucket <= 0 {
		cfg.AlertsPerBucket = def.AlertsPerBucket
	}
	if log == nil {
		log = logger.NewNop()
	}

	a := &Aggregator{
		cfg:  cfg,
		log:  log,
		hour: make(map[string]*StatBucket),
		day:  make(map[string]*StatBucket),
	}

	pool, err := ants.NewPool(cfg.Workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	a.pool = pool

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		pool.Release()
		return nil, err
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.FlushInterval),
		gocron.NewTask(func() { a.Flush(time.Now()) }),
	)
	if err != nil {
		pool.Release()
		return nil, err
	}
	scheduler.Start()
	a.scheduler = scheduler

	return a, nil
}

// Record accumulates one decision synchronously.
func (a *Aggregator) Record(d *Decision, group string, now time.Time) {
	if d == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, b := range a.buckets(now) {
		b.Total++
		if d.Allowed {
			b.Allowed++
		} else {
			b.Blocked++
			if d.Hotspot {
				b.Hotspot++
			}
			a.addAlert(b, d, group, now)
		}
		if d.Strategy != "" {
			b.PerStrategy[d.Strategy]++
		}
		if d.Key != "" {
			b.PerKey[d.Key]++
		}
	}
}

// RecordAsync accumulates one decision off the hot path. When the pool is
// saturated the sample is dropped rather than blocking the caller.
func (a *Aggregator) RecordAsync(d *Decision, group string, now time.Time) {
	err := a.pool.Submit(func() {
		a.Record(d, group, now)
	})
	if err != nil {
		a.log.Debug("async stats sample dropped", zap.Error(err))
	}
}

// RecordError counts an infrastructure failure. It contributes to Total and
// Errors only, so block rates stay meaningful during store outages.
func (a *Aggregator) RecordError(key, strategy string, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, b := range a.buckets(now) {
		b.Total++
		b.Errors++
		if strategy != "" {
			b.PerStrategy[strategy]++
		}
		if key != "" {
			b.PerKey[key]++
		}
	}
}

// buckets returns the hour and day buckets for now, creating them on demand.
// Caller holds the lock.
func (a *Aggregator) buckets(now time.Time) [2]*StatBucket {
	hk := now.Format(hourKeyLayout)
	dk := now.Format(dayKeyLayout)

	hb := a.hour[hk]
	if hb == nil {
		hb = newStatBucket(now)
		a.hour[hk] = hb
	}
	db := a.day[dk]
	if db == nil {
		db = newStatBucket(now)
		a.day[dk] = db
	}
	return [2]*StatBucket{hb, db}
}

// addAlert stores a denial alert under the policy group. Caller holds the
// lock. Buckets keep at most AlertsPerBucket alerts.
func (a *Aggregator) addAlert(b *StatBucket, d *Decision, group string, now time.Time) {
	if group == "" {
		group = "default"
	}
	if len(b.Alerts) >= a.cfg.AlertsPerBucket {
		return
	}
	b.Alerts = append(b.Alerts, Alert{
		Category: group,
		Key:      d.Key,
		Strategy: d.Strategy,
		Message:  d.Message,
		At:       now,
	})
}

// Snapshot returns a copy of one bucket, or nil when it does not exist.
func (a *Aggregator) Snapshot(bt BucketType, key string) *StatBucket {
	a.mu.RLock()
	defer a.mu.RUnlock()

	b := a.lookup(bt, key)
	if b == nil {
		return nil
	}
	return b.clone()
}

// BucketKey formats the bucket key for an instant.
func BucketKey(bt BucketType, t time.Time) string {
	if bt == BucketDay {
		return t.Format(dayKeyLayout)
	}
	return t.Format(hourKeyLayout)
}

// BlockRate returns blocked/total as a percentage. Zero total means zero.
func (a *Aggregator) BlockRate(bt BucketType, key string) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	b := a.lookup(bt, key)
	if b == nil || b.Total == 0 {
		return 0
	}
	return float64(b.Blocked) / float64(b.Total) * 100
}

// IsAnomalous reports whether more than half the traffic in a bucket was
// blocked.
func (a *Aggregator) IsAnomalous(bt BucketType, key string) bool {
	return a.BlockRate(bt, key) > 50
}

// MostActiveStrategy returns the strategy with the highest sample count in a
// bucket.
func (a *Aggregator) MostActiveStrategy(bt BucketType, key string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	b := a.lookup(bt, key)
	if b == nil {
		return ""
	}
	return topEntry(b.PerStrategy)
}

// MostActiveKey returns the limiter key with the highest sample count in a
// bucket.
func (a *Aggregator) MostActiveKey(bt BucketType, key string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	b := a.lookup(bt, key)
	if b == nil {
		return ""
	}
	return topEntry(b.PerKey)
}

// Alerts returns the alerts of one bucket, optionally filtered by category.
func (a *Aggregator) Alerts(bt BucketType, key, category string) []Alert {
	a.mu.RLock()
	defer a.mu.RUnlock()

	b := a.lookup(bt, key)
	if b == nil {
		return nil
	}
	out := make([]Alert, 0, len(b.Alerts))
	for _, alert := range b.Alerts {
		if category == "" || alert.Category == category {
			out = append(out, alert)
		}
	}
	return out
}

// Flush drops buckets older than the retention window.
func (a *Aggregator) Flush(now time.Time) {
	cutoff := now.Add(-a.cfg.Retention)

	a.mu.Lock()
	defer a.mu.Unlock()

	for k, b := range a.hour {
		if b.createdAt.Before(cutoff) {
			delete(a.hour, k)
		}
	}
	for k, b := range a.day {
		if b.createdAt.Before(cutoff) {
			delete(a.day, k)
		}
	}
}

// Close stops the flush job and the worker pool.
func (a *Aggregator) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.scheduler != nil {
			err = a.scheduler.Shutdown()
		}
		if a.pool != nil {
			a.pool.Release()
		}
	})
	return err
}

// lookup resolves one bucket. Caller holds at least a read lock.
func (a *Aggregator) lookup(bt BucketType, key string) *StatBucket {
	if bt == BucketDay {
		return a.day[key]
	}
	return a.hour[key]
}

// topEntry picks the highest-count map entry, ties broken alphabetically.
func topEntry(m map[string]int64) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	var best string
	var bestCount int64 = -1
	for _, name := range names {
		if m[name] > bestCount {
			best = name
			bestCount = m[name]
		}
	}
	return best
}
