package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHotspotDetector_DetectsHotValue(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	det := NewHotspotDetector(store, HotspotConfig{
		Enabled: true,
		Limit:   3,
		Period:  time.Second,
		TopN:    10,
	}, nil)
	ctx := context.Background()

	// within the per-value quota the value is not hot
	for i := 0; i < 3; i++ {
		hot, err := det.Check(ctx, "song.play", "song-1", testBase)
		require.NoError(t, err)
		assert.False(t, hot, "access %d should not be hot", i+1)
	}

	hot, err := det.Check(ctx, "song.play", "song-1", testBase)
	require.NoError(t, err)
	assert.True(t, hot)

	// a different value has its own quota
	hot, err = det.Check(ctx, "song.play", "song-2", testBase)
	require.NoError(t, err)
	assert.False(t, hot)
}

func TestHotspotDetector_CoolsDownAfterPeriod(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	det := NewHotspotDetector(store, HotspotConfig{
		Enabled: true,
		Limit:   1,
		Period:  time.Second,
	}, nil)
	ctx := context.Background()

	_, err := det.Check(ctx, "op", "v", testBase)
	require.NoError(t, err)
	hot, err := det.Check(ctx, "op", "v", testBase)
	require.NoError(t, err)
	require.True(t, hot)

	hot, err = det.Check(ctx, "op", "v", testBase.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, hot)
}

func TestHotspotDetector_DisabledNeverHot(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	det := NewHotspotDetector(store, HotspotConfig{Enabled: false, Limit: 1, Period: time.Second}, nil)

	for i := 0; i < 10; i++ {
		hot, err := det.Check(context.Background(), "op", "v", testBase)
		require.NoError(t, err)
		assert.False(t, hot)
	}
}

func TestHotspotDetector_TopNRanking(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	det := NewHotspotDetector(store, HotspotConfig{
		Enabled: true,
		Limit:   100,
		Period:  time.Minute,
		TopN:    5,
	}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := det.Check(ctx, "song.play", "popular", testBase)
		require.NoError(t, err)
	}
	_, err := det.Check(ctx, "song.play", "rare", testBase)
	require.NoError(t, err)

	entries, err := det.TopN(ctx, "song.play", testBase, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "popular", entries[0].Member)
	assert.Equal(t, int64(3), entries[0].Count)

	// another day has an empty ranking
	entries, err = det.TopN(ctx, "song.play", testBase.Add(48*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
