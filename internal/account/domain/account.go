package domain

import (
	"errors"
	"time"
)

// Account is the owning record for issued tokens, carrying the credential-security state.
//
// Two independent lock mechanisms live here: Active is an administrative suspension with
// no time bound, while Locked/LockoutExpiresAt is the auto-expiring brute-force lock.
// They gate different code paths and are never reconciled.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Active       bool

	FailedLoginAttempts int
	LastFailedLoginAt   *time.Time
	Locked              bool
	LockoutExpiresAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks required fields before persistence.
func (a *Account) Validate() error {
	if a.ID == "" {
		return errors.New("account: id is required")
	}
	if a.Email == "" {
		return errors.New("account: email is required")
	}
	if a.FailedLoginAttempts < 0 {
		return errors.New("account: failed_login_attempts must be >= 0")
	}
	return nil
}

// SecurityState is the mutable lockout-related slice of an account, persisted as one
// row-atomic update.
type SecurityState struct {
	FailedLoginAttempts int
	LastFailedLoginAt   *time.Time
	Locked              bool
	LockoutExpiresAt    *time.Time
}
