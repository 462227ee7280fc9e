package domain

import "time"

// Kind distinguishes the two halves of a minted token pair.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// RevocationReason tags why a token was revoked.
type RevocationReason string

const (
	ReasonPasswordChange          RevocationReason = "password_change"
	ReasonAccountLocked           RevocationReason = "account_locked"
	ReasonAdminAction             RevocationReason = "admin_action"
	ReasonExpired                 RevocationReason = "expired"
	ReasonConcurrentLimitExceeded RevocationReason = "concurrent_limit_exceeded"
	ReasonUserLogout              RevocationReason = "user_logout"
)

// DeviceInfo describes the client a token was issued to. Derived once at issuance, immutable.
type DeviceInfo struct {
	Platform   string
	Browser    string
	DeviceType string
}

// Token is one row per issued bearer credential. For refresh tokens the ID is the session id.
// Revocation is monotonic: once Revoked is true it never reverts.
type Token struct {
	ID         string
	OwnerID    string
	Kind       Kind
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
	RevokedBy  RevocationReason
	Device     DeviceInfo
	SourceIP   string
	LastSeenAt *time.Time // nil until the session is used after issuance
}

// Active reports whether the token is usable at the given instant.
func (t *Token) Active(now time.Time) bool {
	return t != nil && !t.Revoked && now.Before(t.ExpiresAt)
}

// LastActivity returns the most recent use of the token, falling back to issuance.
// Used for least-recently-active eviction ordering.
func (t *Token) LastActivity() time.Time {
	if t.LastSeenAt != nil {
		return *t.LastSeenAt
	}
	return t.IssuedAt
}
