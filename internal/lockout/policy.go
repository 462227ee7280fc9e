// Package lockout tracks failed authentication attempts per account and derives
// locked/unlocked state. The brute-force lock is lazy-expiring: there is no background
// timer, expiry is applied when the state is next read or written.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	accountdomain "sessionguard/internal/account/domain"
	"sessionguard/internal/audit"
	auditdomain "sessionguard/internal/audit/domain"
)

// ErrAccountNotFound is returned when the target account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// SystemAutoUnlock is the actor recorded when a lock clears by lazy expiry rather than
// by a human.
const SystemAutoUnlock = "system_auto_unlock"

// AccountStore is the minimal account repository needed by the policy.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*accountdomain.Account, error)
	UpdateSecurityState(ctx context.Context, id string, state accountdomain.SecurityState) error
}

// Cascade is notified when a lock engages. The security event dispatcher implements it
// and revokes the account's sessions.
type Cascade interface {
	HandleAccountLocked(ctx context.Context, ownerID, sourceIP string)
}

// Auditor records lock/unlock audit entries. *audit.Logger satisfies it.
type Auditor interface {
	LogSecurityEvent(ctx context.Context, eventType auditdomain.EventType, action string, success bool, evctx audit.EventContext, errorMessage string)
}

// Config holds the lockout thresholds.
type Config struct {
	// MaxFailedAttempts locks the account on the Nth consecutive failure; must be >= 1.
	MaxFailedAttempts int
	// ResetWindow restarts the counter at 1 when the previous failure is older than this.
	ResetWindow time.Duration
	// LockoutDuration is how long an engaged lock lasts before lazy expiry.
	LockoutDuration time.Duration
}

// DefaultConfig returns the standard policy: 5 attempts, 60 minute reset window,
// 15 minute lockout.
func DefaultConfig() Config {
	return Config{
		MaxFailedAttempts: 5,
		ResetWindow:       60 * time.Minute,
		LockoutDuration:   15 * time.Minute,
	}
}

// Policy applies the lockout rules against persisted account security state.
// State lives on the account row; the policy itself holds no per-account memory.
type Policy struct {
	accounts AccountStore
	cascade  Cascade
	auditor  Auditor
	cfg      Config
	now      func() time.Time
}

// NewPolicy returns a Policy with the given dependencies. cascade and auditor may be nil.
func NewPolicy(accounts AccountStore, cascade Cascade, auditor Auditor, cfg Config) *Policy {
	if cfg.MaxFailedAttempts < 1 {
		cfg = DefaultConfig()
	}
	return &Policy{
		accounts: accounts,
		cascade:  cascade,
		auditor:  auditor,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Status is the outcome of RecordFailedAttempt.
type Status struct {
	Locked            bool
	RemainingAttempts int
	LockoutExpiresAt  *time.Time
}

// RecordFailedAttempt increments the account's consecutive-failure counter, restarting at
// 1 when the previous failure is older than the reset window, and engages the lock at the
// configured threshold. Engaging the lock triggers the cascade, which revokes the
// account's sessions. Returns ErrAccountNotFound when ownerID does not resolve.
func (p *Policy) RecordFailedAttempt(ctx context.Context, ownerID, sourceIP string) (*Status, error) {
	acct, err := p.accounts.GetByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}
	now := p.now()

	// Lazy expiry: an expired lock clears here, the same as on the read path, so this
	// failure starts a fresh count instead of stacking on the pre-lock counter.
	if p.lockExpired(acct, now) {
		acct.Locked = false
		acct.LockoutExpiresAt = nil
		acct.FailedLoginAttempts = 0
	}

	attempts := acct.FailedLoginAttempts + 1
	if acct.LastFailedLoginAt != nil && now.Sub(*acct.LastFailedLoginAt) > p.cfg.ResetWindow {
		attempts = 1
	}

	state := accountdomain.SecurityState{
		FailedLoginAttempts: attempts,
		LastFailedLoginAt:   &now,
		Locked:              acct.Locked,
		LockoutExpiresAt:    acct.LockoutExpiresAt,
	}
	locking := attempts >= p.cfg.MaxFailedAttempts && !acct.Locked
	if locking {
		expires := now.Add(p.cfg.LockoutDuration)
		state.Locked = true
		state.LockoutExpiresAt = &expires
	}
	if err := p.accounts.UpdateSecurityState(ctx, ownerID, state); err != nil {
		return nil, err
	}
	if locking && p.cascade != nil {
		p.cascade.HandleAccountLocked(ctx, ownerID, sourceIP)
	}

	remaining := p.cfg.MaxFailedAttempts - attempts
	if remaining < 0 {
		remaining = 0
	}
	return &Status{
		Locked:            state.Locked,
		RemainingAttempts: remaining,
		LockoutExpiresAt:  state.LockoutExpiresAt,
	}, nil
}

// IsAccountLocked reports the brute-force lock state, applying lazy expiry write-through:
// when the lock has run out, the cleared fields are persisted before returning false.
// Returns ErrAccountNotFound when ownerID does not resolve.
func (p *Policy) IsAccountLocked(ctx context.Context, ownerID string) (bool, error) {
	acct, err := p.accounts.GetByID(ctx, ownerID)
	if err != nil {
		return false, err
	}
	if acct == nil {
		return false, ErrAccountNotFound
	}
	if !acct.Locked {
		return false, nil
	}
	if !p.lockExpired(acct, p.now()) {
		return true, nil
	}
	err = p.accounts.UpdateSecurityState(ctx, ownerID, accountdomain.SecurityState{
		FailedLoginAttempts: 0,
		LastFailedLoginAt:   nil,
		Locked:              false,
		LockoutExpiresAt:    nil,
	})
	if err != nil {
		return false, err
	}
	if p.auditor != nil {
		p.auditor.LogSecurityEvent(ctx, auditdomain.EventAccountUnlocked, "auto_unlock", true,
			audit.EventContext{OwnerID: ownerID, Metadata: fmt.Sprintf(`{"unlocked_by":%q}`, SystemAutoUnlock)}, "")
	}
	return false, nil
}

// RecordSuccessfulLogin unconditionally resets the failure counter and lock fields.
func (p *Policy) RecordSuccessfulLogin(ctx context.Context, ownerID string) error {
	acct, err := p.accounts.GetByID(ctx, ownerID)
	if err != nil {
		return err
	}
	if acct == nil {
		return ErrAccountNotFound
	}
	return p.accounts.UpdateSecurityState(ctx, ownerID, accountdomain.SecurityState{})
}

// UnlockAccount is the administrative override: resets the counter and lock fields and
// records who did it.
func (p *Policy) UnlockAccount(ctx context.Context, ownerID, unlockedBy string) error {
	acct, err := p.accounts.GetByID(ctx, ownerID)
	if err != nil {
		return err
	}
	if acct == nil {
		return ErrAccountNotFound
	}
	if err := p.accounts.UpdateSecurityState(ctx, ownerID, accountdomain.SecurityState{}); err != nil {
		return err
	}
	if p.auditor != nil {
		p.auditor.LogSecurityEvent(ctx, auditdomain.EventAccountUnlocked, "unlock", true,
			audit.EventContext{OwnerID: ownerID, Metadata: fmt.Sprintf(`{"unlocked_by":%q}`, unlockedBy)}, "")
	}
	return nil
}

func (p *Policy) lockExpired(acct *accountdomain.Account, now time.Time) bool {
	return acct.Locked && acct.LockoutExpiresAt != nil && now.After(*acct.LockoutExpiresAt)
}
