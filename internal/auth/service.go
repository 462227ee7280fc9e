// Package auth is the authentication gateway: it sequences the lockout gate, credential
// verification, session creation, and audit logging for one login attempt, and runs the
// password-change cascade.
package auth

import (
	"context"
	"errors"

	accountdomain "sessionguard/internal/account/domain"
	"sessionguard/internal/audit"
	auditdomain "sessionguard/internal/audit/domain"
	"sessionguard/internal/lockout"
	sessionservice "sessionguard/internal/session/service"
	tokendomain "sessionguard/internal/token/domain"
)

// Sentinel errors for the auth gateway. Callers must surface generic messages only;
// attempt counts never leave this package.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrAccountSuspended   = errors.New("account suspended")
	ErrAccountNotFound    = errors.New("account not found")
)

// AccountRepo is the minimal account repository needed by the gateway.
type AccountRepo interface {
	GetByID(ctx context.Context, id string) (*accountdomain.Account, error)
	GetByEmail(ctx context.Context, email string) (*accountdomain.Account, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// PasswordVerifier hashes and checks passwords. security.Hasher satisfies it; hashing
// itself stays outside this core.
type PasswordVerifier interface {
	Hash(password []byte) (string, error)
	Compare(hash string, password []byte) error
}

// LockoutPolicy is the lockout surface the gateway consults around each attempt.
type LockoutPolicy interface {
	IsAccountLocked(ctx context.Context, ownerID string) (bool, error)
	RecordFailedAttempt(ctx context.Context, ownerID, sourceIP string) (*lockout.Status, error)
	RecordSuccessfulLogin(ctx context.Context, ownerID string) error
}

// SessionCreator creates and revokes sessions. The session manager satisfies it.
type SessionCreator interface {
	CreateSession(ctx context.Context, ownerID string, device tokendomain.DeviceInfo, sourceIP string) (*sessionservice.CreateResult, error)
	InvalidateSession(ctx context.Context, sessionID string, reason tokendomain.RevocationReason) error
}

// PasswordChangeDispatcher runs the password-change cascade. The security event
// dispatcher satisfies it.
type PasswordChangeDispatcher interface {
	HandlePasswordChange(ctx context.Context, ownerID, currentSessionID, sourceIP string) (int64, error)
}

// Auditor records authentication outcomes. *audit.Logger satisfies it.
type Auditor interface {
	LogAuthenticationEvent(ctx context.Context, ownerID, sourceIP string, success bool, errorMessage string)
	LogSecurityEvent(ctx context.Context, eventType auditdomain.EventType, action string, success bool, evctx audit.EventContext, errorMessage string)
}

// Service sequences one authentication attempt end to end.
type Service struct {
	accounts   AccountRepo
	verifier   PasswordVerifier
	lockouts   LockoutPolicy
	sessions   SessionCreator
	dispatcher PasswordChangeDispatcher
	auditor    Auditor
}

// NewService returns a Service with the given dependencies. auditor may be nil.
func NewService(accounts AccountRepo, verifier PasswordVerifier, lockouts LockoutPolicy, sessions SessionCreator, dispatcher PasswordChangeDispatcher, auditor Auditor) *Service {
	return &Service{
		accounts:   accounts,
		verifier:   verifier,
		lockouts:   lockouts,
		sessions:   sessions,
		dispatcher: dispatcher,
		auditor:    auditor,
	}
}

// Login authenticates email/password and creates a session. The order is fixed: lockout
// gate, administrative-suspension gate, password check, then issuance. A failure past the
// gates feeds the lockout counter, which may lock the account and revoke its sessions
// before this call returns.
func (s *Service) Login(ctx context.Context, email, password string, device tokendomain.DeviceInfo, sourceIP string) (*sessionservice.CreateResult, error) {
	acct, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		// Unknown account: same caller-visible error as a bad password, no counter to feed.
		s.auditFailure(ctx, "", sourceIP, "unknown account")
		return nil, ErrInvalidCredentials
	}

	locked, err := s.lockouts.IsAccountLocked(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	if locked {
		s.auditFailure(ctx, acct.ID, sourceIP, "account locked")
		return nil, ErrAccountLocked
	}
	if !acct.Active {
		s.auditFailure(ctx, acct.ID, sourceIP, "account suspended")
		return nil, ErrAccountSuspended
	}

	if err := s.verifier.Compare(acct.PasswordHash, []byte(password)); err != nil {
		if _, err := s.lockouts.RecordFailedAttempt(ctx, acct.ID, sourceIP); err != nil {
			return nil, err
		}
		s.auditFailure(ctx, acct.ID, sourceIP, "invalid password")
		return nil, ErrInvalidCredentials
	}

	if err := s.lockouts.RecordSuccessfulLogin(ctx, acct.ID); err != nil {
		return nil, err
	}
	res, err := s.sessions.CreateSession(ctx, acct.ID, device, sourceIP)
	if err != nil {
		return nil, err
	}
	if s.auditor != nil {
		s.auditor.LogAuthenticationEvent(ctx, acct.ID, sourceIP, true, "")
	}
	return res, nil
}

// Logout revokes the session and its correlated access tokens. Unknown session ids are
// no-ops.
func (s *Service) Logout(ctx context.Context, ownerID, sessionID, sourceIP string) error {
	if err := s.sessions.InvalidateSession(ctx, sessionID, tokendomain.ReasonUserLogout); err != nil {
		return err
	}
	if s.auditor != nil {
		s.auditor.LogSecurityEvent(ctx, auditdomain.EventSessionRevoked, "logout", true,
			audit.EventContext{OwnerID: ownerID, SourceIP: sourceIP}, "")
	}
	return nil
}

// ChangePassword verifies the old password, stores the new hash, and revokes every other
// session of the account. The session the change came from stays live. Returns how many
// rows were revoked for "N other sessions were logged out" reporting.
func (s *Service) ChangePassword(ctx context.Context, ownerID, oldPassword, newPassword, currentSessionID, sourceIP string) (int64, error) {
	acct, err := s.accounts.GetByID(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if acct == nil {
		return 0, ErrAccountNotFound
	}
	if err := s.verifier.Compare(acct.PasswordHash, []byte(oldPassword)); err != nil {
		s.auditFailure(ctx, ownerID, sourceIP, "password change: old password mismatch")
		return 0, ErrInvalidCredentials
	}
	hashed, err := s.verifier.Hash([]byte(newPassword))
	if err != nil {
		return 0, err
	}
	if err := s.accounts.UpdatePasswordHash(ctx, ownerID, hashed); err != nil {
		return 0, err
	}
	return s.dispatcher.HandlePasswordChange(ctx, ownerID, currentSessionID, sourceIP)
}

func (s *Service) auditFailure(ctx context.Context, ownerID, sourceIP, reason string) {
	if s.auditor == nil {
		return
	}
	s.auditor.LogAuthenticationEvent(ctx, ownerID, sourceIP, false, reason)
}
