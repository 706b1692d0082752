package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	a, err := NewAggregator(StatsConfig{
		Workers:         2,
		FlushInterval:   time.Hour,
		Retention:       48 * time.Hour,
		AlertsPerBucket: 3,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAggregator_CountersAndInvariant(t *testing.T) {
	a := newTestAggregator(t)
	now := testBase

	for i := 0; i < 7; i++ {
		a.Record(&Decision{Allowed: true, Strategy: "counter", Key: "k1"}, "", now)
	}
	for i := 0; i < 3; i++ {
		a.Record(&Decision{Allowed: false, Strategy: "counter", Key: "k1"}, "", now)
	}
	a.RecordError("k1", "counter", now)

	key := BucketKey(BucketHour, now)
	snap := a.Snapshot(BucketHour, key)
	require.NotNil(t, snap)

	assert.Equal(t, int64(11), snap.Total)
	assert.Equal(t, int64(7), snap.Allowed)
	assert.Equal(t, int64(3), snap.Blocked)
	assert.Equal(t, int64(1), snap.Errors)
	// errors never count as allowed or blocked
	assert.LessOrEqual(t, snap.Allowed+snap.Blocked, snap.Total)

	daySnap := a.Snapshot(BucketDay, BucketKey(BucketDay, now))
	require.NotNil(t, daySnap)
	assert.Equal(t, int64(11), daySnap.Total)
}

func TestAggregator_BlockRateExact(t *testing.T) {
	a := newTestAggregator(t)
	now := testBase

	a.Record(&Decision{Allowed: true}, "", now)
	a.Record(&Decision{Allowed: false}, "", now)
	a.Record(&Decision{Allowed: false}, "", now)
	a.Record(&Decision{Allowed: false}, "", now)

	key := BucketKey(BucketHour, now)
	assert.Equal(t, float64(75), a.BlockRate(BucketHour, key))
	assert.True(t, a.IsAnomalous(BucketHour, key))

	assert.Equal(t, float64(0), a.BlockRate(BucketHour, "no_such_bucket"))
}

func TestAggregator_NotAnomalousAtExactlyHalf(t *testing.T) {
	a := newTestAggregator(t)
	now := testBase

	a.Record(&Decision{Allowed: true}, "", now)
	a.Record(&Decision{Allowed: false}, "", now)

	key := BucketKey(BucketHour, now)
	assert.Equal(t, float64(50), a.BlockRate(BucketHour, key))
	assert.False(t, a.IsAnomalous(BucketHour, key))
}

func TestAggregator_MostActive(t *testing.T) {
	a := newTestAggregator(t)
	now := testBase

	a.Record(&Decision{Allowed: true, Strategy: "counter", Key: "ka"}, "", now)
	a.Record(&Decision{Allowed: true, Strategy: "token_bucket", Key: "kb"}, "", now)
	a.Record(&Decision{Allowed: true, Strategy: "token_bucket", Key: "kb"}, "", now)

	key := BucketKey(BucketHour, now)
	assert.Equal(t, "token_bucket", a.MostActiveStrategy(BucketHour, key))
	assert.Equal(t, "kb", a.MostActiveKey(BucketHour, key))
}

func TestAggregator_AlertsBoundedAndFiltered(t *testing.T) {
	a := newTestAggregator(t)
	now := testBase

	for i := 0; i < 5; i++ {
		a.Record(&Decision{Allowed: false, Key: "k", Message: "denied"}, "login", now)
	}
	a.Record(&Decision{Allowed: false, Key: "k"}, "payment", now)

	key := BucketKey(BucketHour, now)
	all := a.Alerts(BucketHour, key, "")
	// capped at AlertsPerBucket
	assert.Len(t, all, 3)

	login := a.Alerts(BucketHour, key, "login")
	for _, alert := range login {
		assert.Equal(t, "login", alert.Category)
	}
}

func TestAggregator_FlushPrunesOldBuckets(t *testing.T) {
	a := newTestAggregator(t)

	old := testBase.Add(-72 * time.Hour)
	a.Record(&Decision{Allowed: true}, "", old)
	a.Record(&Decision{Allowed: true}, "", testBase)

	a.Flush(testBase)

	assert.Nil(t, a.Snapshot(BucketHour, BucketKey(BucketHour, old)))
	assert.NotNil(t, a.Snapshot(BucketHour, BucketKey(BucketHour, testBase)))
}

func TestAggregator_RecordAsyncEventuallyLands(t *testing.T) {
	a := newTestAggregator(t)
	now := testBase

	a.RecordAsync(&Decision{Allowed: true}, "", now)

	key := BucketKey(BucketHour, now)
	assert.Eventually(t, func() bool {
		snap := a.Snapshot(BucketHour, key)
		return snap != nil && snap.Total == 1
	}, time.Second, 10*time.Millisecond)
}

func TestAggregator_SnapshotIsACopy(t *testing.T) {
	a := newTestAggregator(t)
	now := testBase

	a.Record(&Decision{Allowed: true, Strategy: "counter"}, "", now)

	key := BucketKey(BucketHour, now)
	snap := a.Snapshot(BucketHour, key)
	snap.PerStrategy["counter"] = 999

	fresh := a.Snapshot(BucketHour, key)
	assert.Equal(t, int64(1), fresh.PerStrategy["counter"])
}
