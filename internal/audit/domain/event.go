package domain

import "time"

// EventType classifies a security-relevant action.
type EventType string

const (
	EventAuthSuccess        EventType = "AUTH_SUCCESS"
	EventAuthFailure        EventType = "AUTH_FAILURE"
	EventAccountLocked      EventType = "ACCOUNT_LOCKED"
	EventAccountUnlocked    EventType = "ACCOUNT_UNLOCKED"
	EventPasswordChange     EventType = "PASSWORD_CHANGE"
	EventSessionRevoked     EventType = "SESSION_REVOKED"
	EventAdminAction        EventType = "ADMIN_ACTION"
	EventSuspiciousActivity EventType = "SUSPICIOUS_ACTIVITY"
	EventRateLimitExceeded  EventType = "RATE_LIMIT_EXCEEDED"
	EventSecurityViolation  EventType = "SECURITY_VIOLATION"
)

// Severity grades a single security event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// SeverityFor derives the event severity deterministically from type and outcome.
// Any SECURITY_VIOLATION is an error; failures and administrative or anomaly-flavored
// successes are warnings; routine successes are info.
func SeverityFor(eventType EventType, success bool) Severity {
	if eventType == EventSecurityViolation {
		return SeverityError
	}
	if !success {
		return SeverityWarning
	}
	switch eventType {
	case EventAccountLocked, EventAccountUnlocked, EventAdminAction,
		EventSuspiciousActivity, EventRateLimitExceeded:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// SecurityEvent is one immutable, append-only audit fact.
type SecurityEvent struct {
	ID           string
	EventType    EventType
	OwnerID      string // empty when the actor is unknown
	SourceIP     string
	Action       string
	Success      bool
	Severity     Severity
	ErrorMessage string
	Metadata     string // JSON blob; empty when there is nothing to add
	CreatedAt    time.Time
}
