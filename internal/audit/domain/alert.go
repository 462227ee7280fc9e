package domain

import "time"

// AlertType names a threshold rule that fired.
type AlertType string

const (
	AlertBruteForceAttack       AlertType = "BRUTE_FORCE_ATTACK"
	AlertSuspiciousLoginPattern AlertType = "SUSPICIOUS_LOGIN_PATTERN"
	AlertRateLimitExceeded      AlertType = "RATE_LIMIT_EXCEEDED"
)

// AlertSeverity grades an alert for operator triage.
type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "low"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityCritical AlertSeverity = "critical"
)

// AlertStatus is the alert lifecycle state. resolved and false_positive are terminal.
type AlertStatus string

const (
	AlertStatusOpen          AlertStatus = "open"
	AlertStatusResolved      AlertStatus = "resolved"
	AlertStatusFalsePositive AlertStatus = "false_positive"
)

// Terminal reports whether no further transition out of the status is allowed.
func (s AlertStatus) Terminal() bool {
	return s == AlertStatusResolved || s == AlertStatusFalsePositive
}

// SecurityAlert is a derived, mutable lifecycle object created when a sliding-window
// rule fires over the event stream. It is mutated only by an explicit resolution.
type SecurityAlert struct {
	ID              string
	AlertType       AlertType
	Severity        AlertSeverity
	OwnerID         string // empty for IP-keyed alerts
	SourceIP        string // empty for owner-keyed alerts
	Description     string
	Status          AlertStatus
	CreatedAt       time.Time
	ResolvedAt      *time.Time
	ResolvedBy      string
	ResolutionNotes string
}
