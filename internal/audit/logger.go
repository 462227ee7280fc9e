// Package audit persists security events and raises threshold alerts over them.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"sessionguard/internal/audit/domain"
	auditrepo "sessionguard/internal/audit/repository"
	"sessionguard/internal/telemetry"
)

// Notifier delivers alert notices to operators. Fire-and-forget: implementations must not
// block the caller beyond the context deadline, and failures stay on their side.
type Notifier interface {
	NotifyAlert(ctx context.Context, a *domain.SecurityAlert)
}

// RuleConfig holds the sliding-window alert thresholds.
type RuleConfig struct {
	// Window is the trailing interval event counts are evaluated over.
	Window time.Duration
	// BruteForceThreshold is the AUTH_FAILURE count per source IP that raises BRUTE_FORCE_ATTACK.
	BruteForceThreshold int64
	// MultiIPThreshold is the distinct AUTH_SUCCESS source-IP count per account that raises
	// SUSPICIOUS_LOGIN_PATTERN.
	MultiIPThreshold int64
	// RateLimitThreshold is the RATE_LIMIT_EXCEEDED count per source IP that raises the
	// same-named alert.
	RateLimitThreshold int64
}

// DefaultRuleConfig returns the standard thresholds: 5 failures, 3 IPs, 10 rate-limit hits
// over a 15 minute window.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		Window:              15 * time.Minute,
		BruteForceThreshold: 5,
		MultiIPThreshold:    3,
		RateLimitThreshold:  10,
	}
}

// EventContext carries the optional dimensions of a security event.
type EventContext struct {
	OwnerID  string
	SourceIP string
	Metadata string // JSON; empty when there is nothing to add
}

// Logger appends security events and evaluates alert rules after each append.
// All writes are best-effort from the caller's perspective: a failing audit store is
// reported to the operational log and never blocks the primary security action.
type Logger struct {
	repo     auditrepo.Repository
	notifier Notifier
	rules    RuleConfig
	metrics  *telemetry.Metrics
	now      func() time.Time
}

// NewLogger returns a Logger that persists to repo and sends raised alerts through
// notifier. notifier and metrics may be nil.
func NewLogger(repo auditrepo.Repository, notifier Notifier, rules RuleConfig, metrics *telemetry.Metrics) *Logger {
	if rules.Window <= 0 {
		rules = DefaultRuleConfig()
	}
	return &Logger{repo: repo, notifier: notifier, rules: rules, metrics: metrics, now: func() time.Time { return time.Now().UTC() }}
}

// LogSecurityEvent appends one event row with deterministic severity, then evaluates the
// alert rules on the just-appended event's dimensions. Never returns an error: failures
// go to the operational log only.
func (l *Logger) LogSecurityEvent(ctx context.Context, eventType domain.EventType, action string, success bool, evctx EventContext, errorMessage string) {
	if l == nil || l.repo == nil {
		return
	}
	event := &domain.SecurityEvent{
		ID:           uuid.New().String(),
		EventType:    eventType,
		OwnerID:      evctx.OwnerID,
		SourceIP:     evctx.SourceIP,
		Action:       action,
		Success:      success,
		Severity:     domain.SeverityFor(eventType, success),
		ErrorMessage: errorMessage,
		Metadata:     evctx.Metadata,
		CreatedAt:    l.now(),
	}
	if err := l.repo.CreateEvent(ctx, event); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", eventType, action, err)
		return
	}
	l.metrics.RecordEvent(ctx, string(event.EventType), string(event.Severity))
	l.evaluateRules(ctx, event)
}

// LogAuthenticationEvent records one login attempt outcome.
func (l *Logger) LogAuthenticationEvent(ctx context.Context, ownerID, sourceIP string, success bool, errorMessage string) {
	eventType := domain.EventAuthFailure
	if success {
		eventType = domain.EventAuthSuccess
	}
	l.LogSecurityEvent(ctx, eventType, "login", success, EventContext{OwnerID: ownerID, SourceIP: sourceIP}, errorMessage)
}

// LogSuspiciousActivity records a heuristic anomaly signal. Audit only; callers must not
// revoke sessions off the back of it.
func (l *Logger) LogSuspiciousActivity(ctx context.Context, ownerID, sourceIP, action, metadata string) {
	l.LogSecurityEvent(ctx, domain.EventSuspiciousActivity, action, true, EventContext{OwnerID: ownerID, SourceIP: sourceIP, Metadata: metadata}, "")
}
