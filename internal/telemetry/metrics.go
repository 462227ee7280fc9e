// Package telemetry exposes OpenTelemetry counters for the security core.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds counters for security events, alerts, and session lifecycle.
// A nil *Metrics is a no-op everywhere so library callers can skip telemetry.
type Metrics struct {
	eventsTotal     metric.Int64Counter
	alertsTotal     metric.Int64Counter
	sessionsCreated metric.Int64Counter
	sessionsRevoked metric.Int64Counter
}

// NewMetrics registers the counters on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	eventsTotal, err := meter.Int64Counter("sessionguard.security_events",
		metric.WithDescription("Security events appended to the audit store"))
	if err != nil {
		return nil, err
	}
	alertsTotal, err := meter.Int64Counter("sessionguard.security_alerts",
		metric.WithDescription("Security alerts raised by sliding-window rules"))
	if err != nil {
		return nil, err
	}
	sessionsCreated, err := meter.Int64Counter("sessionguard.sessions_created",
		metric.WithDescription("Sessions created"))
	if err != nil {
		return nil, err
	}
	sessionsRevoked, err := meter.Int64Counter("sessionguard.sessions_revoked",
		metric.WithDescription("Sessions revoked, by reason"))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		eventsTotal:     eventsTotal,
		alertsTotal:     alertsTotal,
		sessionsCreated: sessionsCreated,
		sessionsRevoked: sessionsRevoked,
	}, nil
}

// RecordEvent counts one audit event by type and severity.
func (m *Metrics) RecordEvent(ctx context.Context, eventType, severity string) {
	if m == nil {
		return
	}
	m.eventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("severity", severity),
	))
}

// RecordAlert counts one raised alert by type and severity.
func (m *Metrics) RecordAlert(ctx context.Context, alertType, severity string) {
	if m == nil {
		return
	}
	m.alertsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("alert_type", alertType),
		attribute.String("severity", severity),
	))
}

// RecordSessionCreated counts one created session.
func (m *Metrics) RecordSessionCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsCreated.Add(ctx, 1)
}

// RecordSessionsRevoked counts n revoked sessions with the given reason.
func (m *Metrics) RecordSessionsRevoked(ctx context.Context, n int64, reason string) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsRevoked.Add(ctx, n, metric.WithAttributes(attribute.String("reason", reason)))
}
