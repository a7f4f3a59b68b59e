package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/skillsenselab/faultkit/resilience"
)

// ResilienceMetrics holds OpenTelemetry instruments for resilience primitive
// state. Values are recorded from point-in-time snapshots, so every instrument
// is a gauge: lifetime totals are exported as observed values, not deltas.
type ResilienceMetrics struct {
	breakerState    metric.Int64Gauge
	breakerCalls    metric.Int64Gauge
	breakerFailures metric.Int64Gauge
	breakerRejected metric.Int64Gauge

	retryAttempts  metric.Int64Gauge
	retryExhausted metric.Int64Gauge

	bulkheadActive   metric.Int64Gauge
	bulkheadQueued   metric.Int64Gauge
	bulkheadRejected metric.Int64Gauge

	healthStatus metric.Int64Gauge
	healthUptime metric.Float64Gauge

	limiterLimited metric.Int64Gauge

	eventsDropped metric.Int64Gauge
}

// NewResilienceMetrics creates the instrument set on the given meter.
func NewResilienceMetrics(meter metric.Meter) (*ResilienceMetrics, error) {
	m := &ResilienceMetrics{}
	var err error

	if m.breakerState, err = meter.Int64Gauge("breaker.state",
		metric.WithDescription("Circuit breaker state (0=closed, 1=open, 2=half-open)"),
	); err != nil {
		return nil, fmt.Errorf("creating breaker.state gauge: %w", err)
	}
	if m.breakerCalls, err = meter.Int64Gauge("breaker.calls.total",
		metric.WithDescription("Lifetime calls through the breaker"),
	); err != nil {
		return nil, fmt.Errorf("creating breaker.calls.total gauge: %w", err)
	}
	if m.breakerFailures, err = meter.Int64Gauge("breaker.failures.total",
		metric.WithDescription("Lifetime failed calls"),
	); err != nil {
		return nil, fmt.Errorf("creating breaker.failures.total gauge: %w", err)
	}
	if m.breakerRejected, err = meter.Int64Gauge("breaker.rejected.total",
		metric.WithDescription("Calls rejected while open"),
	); err != nil {
		return nil, fmt.Errorf("creating breaker.rejected.total gauge: %w", err)
	}

	if m.retryAttempts, err = meter.Int64Gauge("retry.attempts.total",
		metric.WithDescription("Lifetime attempts including retries"),
	); err != nil {
		return nil, fmt.Errorf("creating retry.attempts.total gauge: %w", err)
	}
	if m.retryExhausted, err = meter.Int64Gauge("retry.exhausted.total",
		metric.WithDescription("Operations that exhausted all retries"),
	); err != nil {
		return nil, fmt.Errorf("creating retry.exhausted.total gauge: %w", err)
	}

	if m.bulkheadActive, err = meter.Int64Gauge("bulkhead.active",
		metric.WithDescription("Operations currently executing"),
	); err != nil {
		return nil, fmt.Errorf("creating bulkhead.active gauge: %w", err)
	}
	if m.bulkheadQueued, err = meter.Int64Gauge("bulkhead.queued",
		metric.WithDescription("Callers currently waiting for a slot"),
	); err != nil {
		return nil, fmt.Errorf("creating bulkhead.queued gauge: %w", err)
	}
	if m.bulkheadRejected, err = meter.Int64Gauge("bulkhead.rejected.total",
		metric.WithDescription("Calls rejected with a full queue"),
	); err != nil {
		return nil, fmt.Errorf("creating bulkhead.rejected.total gauge: %w", err)
	}

	if m.healthStatus, err = meter.Int64Gauge("health.status",
		metric.WithDescription("Resource health (1=healthy, 0=unhealthy)"),
	); err != nil {
		return nil, fmt.Errorf("creating health.status gauge: %w", err)
	}
	if m.healthUptime, err = meter.Float64Gauge("health.uptime.ratio",
		metric.WithDescription("Lifetime ratio of successful probes"),
	); err != nil {
		return nil, fmt.Errorf("creating health.uptime.ratio gauge: %w", err)
	}

	if m.limiterLimited, err = meter.Int64Gauge("ratelimit.limited.total",
		metric.WithDescription("Calls rejected by the rate limiter"),
	); err != nil {
		return nil, fmt.Errorf("creating ratelimit.limited.total gauge: %w", err)
	}

	if m.eventsDropped, err = meter.Int64Gauge("events.dropped.total",
		metric.WithDescription("Transition events dropped on a full buffer"),
	); err != nil {
		return nil, fmt.Errorf("creating events.dropped.total gauge: %w", err)
	}

	return m, nil
}

// RecordBreaker exports a circuit breaker snapshot.
func (m *ResilienceMetrics) RecordBreaker(ctx context.Context, s resilience.BreakerSnapshot) {
	attrs := metric.WithAttributes(attribute.String("resource", s.Name))
	m.breakerState.Record(ctx, stateValue(s.State), attrs)
	m.breakerCalls.Record(ctx, int64(s.Counters.Calls), attrs)
	m.breakerFailures.Record(ctx, int64(s.Counters.Failures), attrs)
	m.breakerRejected.Record(ctx, int64(s.Counters.Rejected), attrs)
}

// RecordRetry exports a retry executor snapshot.
func (m *ResilienceMetrics) RecordRetry(ctx context.Context, s resilience.RetrySnapshot) {
	attrs := metric.WithAttributes(attribute.String("resource", s.Name))
	m.retryAttempts.Record(ctx, int64(s.Counters.Attempts), attrs)
	m.retryExhausted.Record(ctx, int64(s.Counters.Exhausted), attrs)
}

// RecordBulkhead exports a bulkhead snapshot.
func (m *ResilienceMetrics) RecordBulkhead(ctx context.Context, s resilience.BulkheadSnapshot) {
	attrs := metric.WithAttributes(attribute.String("resource", s.Name))
	m.bulkheadActive.Record(ctx, int64(s.Active), attrs)
	m.bulkheadQueued.Record(ctx, int64(s.Queued), attrs)
	m.bulkheadRejected.Record(ctx, int64(s.Counters.Rejected), attrs)
}

// RecordHealth exports a health checker snapshot.
func (m *ResilienceMetrics) RecordHealth(ctx context.Context, s resilience.HealthSnapshot) {
	attrs := metric.WithAttributes(attribute.String("resource", s.Name))
	var status int64
	if s.Healthy {
		status = 1
	}
	m.healthStatus.Record(ctx, status, attrs)
	m.healthUptime.Record(ctx, s.UptimeRatio, attrs)
}

// RecordRateLimiter exports a rate limiter snapshot.
func (m *ResilienceMetrics) RecordRateLimiter(ctx context.Context, s resilience.RateLimiterSnapshot) {
	attrs := metric.WithAttributes(attribute.String("resource", s.Name))
	m.limiterLimited.Record(ctx, int64(s.Counters.Limited), attrs)
}

// RecordEventsDropped exports the publisher's drop counter.
func (m *ResilienceMetrics) RecordEventsDropped(ctx context.Context, dropped uint64) {
	m.eventsDropped.Record(ctx, int64(dropped))
}

func stateValue(state string) int64 {
	switch state {
	case "open":
		return 1
	case "half-open":
		return 2
	default:
		return 0
	}
}
