package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_EffectivePeriod(t *testing.T) {
	tests := []struct {
		name     string
		period   int64
		timeUnit string
		want     time.Duration
	}{
		{"seconds", 30, "second", 30 * time.Second},
		{"short seconds", 30, "s", 30 * time.Second},
		{"milliseconds", 500, "millisecond", 500 * time.Millisecond},
		{"minutes", 2, "minute", 2 * time.Minute},
		{"hours", 1, "hour", time.Hour},
		{"days", 1, "day", 24 * time.Hour},
		{"empty unit defaults to second", 5, "", 5 * time.Second},
		{"zero period falls back", 0, "second", DefaultPeriod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Policy{Period: tt.period, TimeUnit: tt.timeUnit}
			assert.Equal(t, tt.want, p.EffectivePeriod())
		})
	}
}

func TestPolicy_MergeOverlaysNonZeroFields(t *testing.T) {
	base := DefaultPolicy()
	base.Limit = 100
	base.Message = "base message"

	merged := base.Merge(Policy{
		Limit:     10,
		Algorithm: string(AlgorithmTokenBucket),
		Async:     true,
	})

	assert.Equal(t, int64(10), merged.Limit)
	assert.Equal(t, string(AlgorithmTokenBucket), merged.Algorithm)
	assert.Equal(t, "base message", merged.Message)
	assert.True(t, merged.IsEnabled())
	assert.True(t, merged.Async)

	// only an explicit Enabled overrides; unset keeps the base's value
	merged = base.Merge(Policy{Enabled: Bool(false)})
	assert.False(t, merged.IsEnabled())
	merged = base.Merge(Policy{Limit: 1})
	assert.True(t, merged.IsEnabled())
}

func TestPolicy_WithDefaultsPerAlgorithm(t *testing.T) {
	p := Policy{Algorithm: string(AlgorithmTokenBucket)}.withDefaults()
	assert.Equal(t, DefaultCapacity, p.BucketCapacity)
	assert.Equal(t, DefaultRefillRate, p.RefillRate)
	assert.Equal(t, DefaultLimit, p.Limit)

	p = Policy{Algorithm: string(AlgorithmLeakyBucket)}.withDefaults()
	assert.Equal(t, DefaultCapacity, p.LeakyBucketCapacity)
	assert.Equal(t, DefaultLeakRate, p.LeakRate)

	p = Policy{Algorithm: string(AlgorithmSlidingWindow)}.withDefaults()
	assert.Equal(t, DefaultWindowSlices, p.WindowSlices)

	p = Policy{}.withDefaults()
	assert.Equal(t, string(AlgorithmCounter), p.Algorithm)
	assert.Equal(t, string(DimensionOperation), p.Dimension)
	assert.True(t, p.IsEnabled())
}

func TestPolicy_Validate(t *testing.T) {
	p := DefaultPolicy()
	p.Limit = 10
	require.NoError(t, p.Validate())

	bad := DefaultPolicy()
	bad.Limit = 10
	bad.Algorithm = "no_such_algorithm"
	err := bad.Validate()
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	bad = DefaultPolicy()
	bad.Limit = 10
	bad.Dimension = "no_such_dimension"
	assert.Error(t, bad.Validate())

	bad = DefaultPolicy()
	bad.Limit = 10
	bad.Dimension = string(DimensionCustom)
	err = bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_generator")
}

func TestPolicy_DimensionT(t *testing.T) {
	p := Policy{}
	assert.Equal(t, DimensionOperation, p.DimensionT())

	p.Dimension = string(DimensionIP)
	assert.Equal(t, DimensionIP, p.DimensionT())
}
