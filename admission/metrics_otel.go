package admission

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsConfig admission metrics switches.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// OTelMetrics OpenTelemetry instrumentation for admission decisions.
type OTelMetrics struct {
	config     MetricsConfig
	meter      metric.Meter
	registered bool
	mu         sync.RWMutex

	requestsTotal metric.Int64Counter
	allowedTotal  metric.Int64Counter
	blockedTotal  metric.Int64Counter
	hotspotTotal  metric.Int64Counter
	errorsTotal   metric.Int64Counter
}

// NewOTelMetrics creates the metrics provider.
func NewOTelMetrics(cfg MetricsConfig) *OTelMetrics {
	return &OTelMetrics{config: cfg}
}

// MetricsName returns the metrics group name.
func (m *OTelMetrics) MetricsName() string {
	return "admission"
}

// IsMetricsEnabled returns whether metrics collection is enabled.
func (m *OTelMetrics) IsMetricsEnabled() bool {
	return m.config.Enabled
}

// RegisterMetrics registers the admission instruments with the Meter.
func (m *OTelMetrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	m.meter = meter
	var err error

	m.requestsTotal, err = meter.Int64Counter(
		"admission_requests_total",
		metric.WithDescription("Total number of admission evaluations"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.allowedTotal, err = meter.Int64Counter(
		"admission_allowed_total",
		metric.WithDescription("Total number of admitted requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.blockedTotal, err = meter.Int64Counter(
		"admission_blocked_total",
		metric.WithDescription("Total number of blocked requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.hotspotTotal, err = meter.Int64Counter(
		"admission_hotspot_total",
		metric.WithDescription("Total number of hotspot denials"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.errorsTotal, err = meter.Int64Counter(
		"admission_errors_total",
		metric.WithDescription("Total number of store failures during evaluation"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	m.registered = true
	return nil
}

// Record records one admission decision.
func (m *OTelMetrics) Record(ctx context.Context, policy string, d *Decision) {
	if !m.IsRegistered() || d == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("policy", policy),
		attribute.String("strategy", d.Strategy),
	)

	m.requestsTotal.Add(ctx, 1, attrs)
	if d.Allowed {
		m.allowedTotal.Add(ctx, 1, attrs)
		return
	}
	m.blockedTotal.Add(ctx, 1, attrs)
	if d.Hotspot {
		m.hotspotTotal.Add(ctx, 1, attrs)
	}
}

// RecordError records a store failure.
func (m *OTelMetrics) RecordError(ctx context.Context, policy, strategy string) {
	if !m.IsRegistered() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("policy", policy),
		attribute.String("strategy", strategy),
	)
	m.requestsTotal.Add(ctx, 1, attrs)
	m.errorsTotal.Add(ctx, 1, attrs)
}

// IsRegistered returns whether the instruments were registered.
func (m *OTelMetrics) IsRegistered() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered
}
