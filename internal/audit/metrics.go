package audit

import (
	"context"
	"time"

	"sessionguard/internal/audit/domain"
	auditrepo "sessionguard/internal/audit/repository"
)

// SecurityMetrics is a read-only aggregation over the event and alert streams for
// operational dashboards.
type SecurityMetrics struct {
	WindowHours          int
	TotalEvents          int64
	FailedLogins         int64
	SuspiciousActivities int64
	OpenAlerts           int64
	TopSourceIPs         []auditrepo.IPCount
	EventsByType         map[domain.EventType]int64
	AlertsBySeverity     map[domain.AlertSeverity]int64
}

// topIPLimit caps the top-offender breakdown.
const topIPLimit = 10

// GetSecurityMetrics aggregates events and alerts over the trailing windowHours.
// windowHours <= 0 defaults to 24.
func (l *Logger) GetSecurityMetrics(ctx context.Context, windowHours int) (*SecurityMetrics, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	since := l.now().Add(-time.Duration(windowHours) * time.Hour)

	total, err := l.repo.CountEventsSince(ctx, since)
	if err != nil {
		return nil, err
	}
	byType, err := l.repo.CountEventsByTypeSince(ctx, since)
	if err != nil {
		return nil, err
	}
	openAlerts, err := l.repo.CountOpenAlerts(ctx)
	if err != nil {
		return nil, err
	}
	topIPs, err := l.repo.TopSourceIPs(ctx, since, topIPLimit)
	if err != nil {
		return nil, err
	}
	bySeverity, err := l.repo.CountAlertsBySeveritySince(ctx, since)
	if err != nil {
		return nil, err
	}

	return &SecurityMetrics{
		WindowHours:          windowHours,
		TotalEvents:          total,
		FailedLogins:         byType[domain.EventAuthFailure],
		SuspiciousActivities: byType[domain.EventSuspiciousActivity],
		OpenAlerts:           openAlerts,
		TopSourceIPs:         topIPs,
		EventsByType:         byType,
		AlertsBySeverity:     bySeverity,
	}, nil
}
