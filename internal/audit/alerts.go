package audit

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"sessionguard/internal/audit/domain"
)

var (
	// ErrAlertNotFound is returned when resolving an alert id that does not exist.
	ErrAlertNotFound = errors.New("security alert not found")
	// ErrAlertAlreadyResolved is returned when resolving an alert already in a terminal state.
	ErrAlertAlreadyResolved = errors.New("security alert already resolved")
	// ErrInvalidAlertStatus is returned for resolution statuses other than resolved or false_positive.
	ErrInvalidAlertStatus = errors.New("alert resolution status must be resolved or false_positive")
)

// evaluateRules runs each independent rule keyed on the just-appended event.
// Rules are count queries over the trailing window; they deliberately do not suppress
// duplicate alerts on repeated breaches, so operators see escalating volume.
func (l *Logger) evaluateRules(ctx context.Context, event *domain.SecurityEvent) {
	since := event.CreatedAt.Add(-l.rules.Window)

	switch event.EventType {
	case domain.EventAuthFailure:
		if event.SourceIP == "" {
			return
		}
		n, err := l.repo.CountEventsByIP(ctx, domain.EventAuthFailure, event.SourceIP, since)
		if err != nil {
			log.Printf("audit: brute-force rule query failed: %v", err)
			return
		}
		if n >= l.rules.BruteForceThreshold {
			l.raiseAlert(ctx, &domain.SecurityAlert{
				AlertType:   domain.AlertBruteForceAttack,
				Severity:    domain.AlertSeverityHigh,
				SourceIP:    event.SourceIP,
				Description: fmt.Sprintf("%d failed login attempts from %s within %s", n, event.SourceIP, l.rules.Window),
			})
		}
	case domain.EventAuthSuccess:
		if event.OwnerID == "" {
			return
		}
		n, err := l.repo.CountDistinctIPsByOwner(ctx, domain.EventAuthSuccess, event.OwnerID, since)
		if err != nil {
			log.Printf("audit: multi-IP rule query failed: %v", err)
			return
		}
		if n >= l.rules.MultiIPThreshold {
			l.raiseAlert(ctx, &domain.SecurityAlert{
				AlertType:   domain.AlertSuspiciousLoginPattern,
				Severity:    domain.AlertSeverityMedium,
				OwnerID:     event.OwnerID,
				Description: fmt.Sprintf("logins for account %s from %d distinct IPs within %s", event.OwnerID, n, l.rules.Window),
			})
		}
	case domain.EventRateLimitExceeded:
		if event.SourceIP == "" {
			return
		}
		n, err := l.repo.CountEventsByIP(ctx, domain.EventRateLimitExceeded, event.SourceIP, since)
		if err != nil {
			log.Printf("audit: rate-limit rule query failed: %v", err)
			return
		}
		if n >= l.rules.RateLimitThreshold {
			l.raiseAlert(ctx, &domain.SecurityAlert{
				AlertType:   domain.AlertRateLimitExceeded,
				Severity:    domain.AlertSeverityMedium,
				SourceIP:    event.SourceIP,
				Description: fmt.Sprintf("%d rate-limit rejections from %s within %s", n, event.SourceIP, l.rules.Window),
			})
		}
	}
}

// raiseAlert persists the alert in the open state and hands it to the notifier.
// Best-effort on both counts.
func (l *Logger) raiseAlert(ctx context.Context, a *domain.SecurityAlert) {
	a.ID = uuid.New().String()
	a.Status = domain.AlertStatusOpen
	a.CreatedAt = l.now()
	if err := l.repo.CreateAlert(ctx, a); err != nil {
		log.Printf("audit: failed to create %s alert: %v", a.AlertType, err)
		return
	}
	l.metrics.RecordAlert(ctx, string(a.AlertType), string(a.Severity))
	if l.notifier != nil {
		l.notifier.NotifyAlert(ctx, a)
	}
}

// ResolveSecurityAlert applies the terminal transition for alertID. status must be
// resolved or false_positive; there is no transition out of either.
func (l *Logger) ResolveSecurityAlert(ctx context.Context, alertID, resolvedBy, notes string, status domain.AlertStatus) error {
	if !status.Terminal() {
		return ErrInvalidAlertStatus
	}
	changed, err := l.repo.ResolveAlert(ctx, alertID, status, resolvedBy, notes, l.now())
	if err != nil {
		return err
	}
	if changed {
		return nil
	}
	existing, err := l.repo.GetAlertByID(ctx, alertID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrAlertNotFound
	}
	return ErrAlertAlreadyResolved
}
