package repository

import (
	"context"
	"time"

	"sessionguard/internal/audit/domain"
)

// IPCount is a per-source-IP event count, used for the top-offender breakdown.
type IPCount struct {
	SourceIP string
	Count    int64
}

// Repository defines persistence for security events and alerts.
type Repository interface {
	// CreateEvent appends one immutable event row.
	CreateEvent(ctx context.Context, e *domain.SecurityEvent) error
	// CountEventsByIP counts events of the given type from sourceIP at or after since.
	CountEventsByIP(ctx context.Context, eventType domain.EventType, sourceIP string, since time.Time) (int64, error)
	// CountDistinctIPsByOwner counts distinct source IPs with events of the given type
	// for ownerID at or after since.
	CountDistinctIPsByOwner(ctx context.Context, eventType domain.EventType, ownerID string, since time.Time) (int64, error)

	CreateAlert(ctx context.Context, a *domain.SecurityAlert) error
	GetAlertByID(ctx context.Context, id string) (*domain.SecurityAlert, error)
	// ResolveAlert applies a terminal transition. Returns false when the alert is missing
	// or already terminal; the open-status guard keeps terminal states final.
	ResolveAlert(ctx context.Context, id string, status domain.AlertStatus, resolvedBy, notes string, at time.Time) (bool, error)
	ListAlertsByStatus(ctx context.Context, status domain.AlertStatus, limit, offset int32) ([]*domain.SecurityAlert, error)

	// Aggregations for security metrics, all scoped to events/alerts at or after since.
	CountEventsSince(ctx context.Context, since time.Time) (int64, error)
	CountEventsByTypeSince(ctx context.Context, since time.Time) (map[domain.EventType]int64, error)
	CountOpenAlerts(ctx context.Context) (int64, error)
	TopSourceIPs(ctx context.Context, since time.Time, limit int32) ([]IPCount, error)
	CountAlertsBySeveritySince(ctx context.Context, since time.Time) (map[domain.AlertSeverity]int64, error)
}
