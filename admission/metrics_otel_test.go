package admission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupTestMeterProvider(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
	)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return mp, reader
}

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			sums[m.Name] = total
		}
	}
	return sums
}

func TestOTelMetrics_RecordDecisions(t *testing.T) {
	mp, reader := setupTestMeterProvider(t)

	m := NewOTelMetrics(MetricsConfig{Enabled: true})
	require.NoError(t, m.RegisterMetrics(mp.Meter("test")))
	require.True(t, m.IsRegistered())

	ctx := context.Background()
	m.Record(ctx, "play", &Decision{Allowed: true, Strategy: string(AlgorithmCounter)})
	m.Record(ctx, "play", &Decision{Allowed: false, Strategy: string(AlgorithmCounter)})
	m.Record(ctx, "play", &Decision{Allowed: false, Strategy: string(AlgorithmCounter), Hotspot: true})

	sums := collectSums(t, reader)
	assert.Equal(t, int64(3), sums["admission_requests_total"])
	assert.Equal(t, int64(1), sums["admission_allowed_total"])
	assert.Equal(t, int64(2), sums["admission_blocked_total"])
	assert.Equal(t, int64(1), sums["admission_hotspot_total"])
}

func TestOTelMetrics_RecordError(t *testing.T) {
	mp, reader := setupTestMeterProvider(t)

	m := NewOTelMetrics(MetricsConfig{Enabled: true})
	require.NoError(t, m.RegisterMetrics(mp.Meter("test")))

	m.RecordError(context.Background(), "play", string(AlgorithmTokenBucket))

	sums := collectSums(t, reader)
	assert.Equal(t, int64(1), sums["admission_requests_total"])
	assert.Equal(t, int64(1), sums["admission_errors_total"])
	assert.Equal(t, int64(0), sums["admission_blocked_total"])
}

func TestOTelMetrics_UnregisteredIsNoop(t *testing.T) {
	m := NewOTelMetrics(MetricsConfig{})
	assert.False(t, m.IsRegistered())

	// must not panic before registration
	m.Record(context.Background(), "play", &Decision{Allowed: true})
	m.RecordError(context.Background(), "play", string(AlgorithmCounter))
}

func TestOTelMetrics_RegisterTwice(t *testing.T) {
	mp, _ := setupTestMeterProvider(t)

	m := NewOTelMetrics(MetricsConfig{Enabled: true})
	require.NoError(t, m.RegisterMetrics(mp.Meter("test")))
	require.NoError(t, m.RegisterMetrics(mp.Meter("other")))
	assert.Equal(t, "admission", m.MetricsName())
	assert.True(t, m.IsMetricsEnabled())
}
