// Package secevent routes domain security events to session revocation and audit calls.
// Pure cascading logic; the dispatcher holds no state of its own.
package secevent

import (
	"context"
	"fmt"
	"log"

	"sessionguard/internal/audit"
	auditdomain "sessionguard/internal/audit/domain"
	tokendomain "sessionguard/internal/token/domain"
)

// SessionRevoker is the minimal session manager surface the dispatcher cascades into.
type SessionRevoker interface {
	InvalidateSession(ctx context.Context, sessionID string, reason tokendomain.RevocationReason) error
	InvalidateAllUserSessions(ctx context.Context, ownerID string, reason tokendomain.RevocationReason, excludeSessionID string) (int64, error)
}

// Auditor records the structured security event each branch emits. *audit.Logger satisfies it.
type Auditor interface {
	LogSecurityEvent(ctx context.Context, eventType auditdomain.EventType, action string, success bool, evctx audit.EventContext, errorMessage string)
}

// Dispatcher maps a closed set of event kinds onto session manager and audit logger calls.
type Dispatcher struct {
	sessions SessionRevoker
	auditor  Auditor
}

// NewDispatcher returns a Dispatcher with the given dependencies. auditor may be nil.
func NewDispatcher(sessions SessionRevoker, auditor Auditor) *Dispatcher {
	return &Dispatcher{sessions: sessions, auditor: auditor}
}

// HandlePasswordChange revokes every session of the owner except the one the change was
// made from, so the user is not logged out of the session they are actively using.
// Returns the revoked-row count for caller-visible reporting.
func (d *Dispatcher) HandlePasswordChange(ctx context.Context, ownerID, currentSessionID, sourceIP string) (int64, error) {
	n, err := d.sessions.InvalidateAllUserSessions(ctx, ownerID, tokendomain.ReasonPasswordChange, currentSessionID)
	if err != nil {
		return 0, err
	}
	d.logEvent(ctx, auditdomain.EventPasswordChange, "password_change", true, audit.EventContext{
		OwnerID:  ownerID,
		SourceIP: sourceIP,
		Metadata: fmt.Sprintf(`{"revoked_sessions":%d}`, n),
	})
	return n, nil
}

// HandleAccountLocked revokes every session of the locked account. Implements
// lockout.Cascade. The triggering failure is already on the audit stream; this adds the
// separate ACCOUNT_LOCKED entry for the lock itself. Revocation failures go to the
// operational log — the lock has already taken effect on the account row.
func (d *Dispatcher) HandleAccountLocked(ctx context.Context, ownerID, sourceIP string) {
	n, err := d.sessions.InvalidateAllUserSessions(ctx, ownerID, tokendomain.ReasonAccountLocked, "")
	if err != nil {
		log.Printf("secevent: failed to revoke sessions for locked account %s: %v", ownerID, err)
	}
	d.logEvent(ctx, auditdomain.EventAccountLocked, "account_locked", true, audit.EventContext{
		OwnerID:  ownerID,
		SourceIP: sourceIP,
		Metadata: fmt.Sprintf(`{"revoked_sessions":%d}`, n),
	})
}

// HandleAdminAction revokes the targeted session when one is named, otherwise every
// session of the target account. Returns the revoked-row count.
func (d *Dispatcher) HandleAdminAction(ctx context.Context, ownerID, targetSessionID, adminID, sourceIP string) (int64, error) {
	var (
		n   int64
		err error
	)
	if targetSessionID != "" {
		err = d.sessions.InvalidateSession(ctx, targetSessionID, tokendomain.ReasonAdminAction)
		if err == nil {
			n = 1
		}
	} else {
		n, err = d.sessions.InvalidateAllUserSessions(ctx, ownerID, tokendomain.ReasonAdminAction, "")
	}
	if err != nil {
		return 0, err
	}
	d.logEvent(ctx, auditdomain.EventAdminAction, "admin_session_revoke", true, audit.EventContext{
		OwnerID:  ownerID,
		SourceIP: sourceIP,
		Metadata: fmt.Sprintf(`{"admin_id":%q,"target_session":%q,"revoked_sessions":%d}`, adminID, targetSessionID, n),
	})
	return n, nil
}

// HandleSuspiciousActivity records the signal on the audit stream and nothing else.
// No automatic revocation: heuristic signals alone must not lock out legitimate users.
func (d *Dispatcher) HandleSuspiciousActivity(ctx context.Context, ownerID, sourceIP, action, details string) {
	d.logEvent(ctx, auditdomain.EventSuspiciousActivity, action, true, audit.EventContext{
		OwnerID:  ownerID,
		SourceIP: sourceIP,
		Metadata: details,
	})
}

func (d *Dispatcher) logEvent(ctx context.Context, eventType auditdomain.EventType, action string, success bool, evctx audit.EventContext) {
	if d.auditor == nil {
		return
	}
	d.auditor.LogSecurityEvent(ctx, eventType, action, success, evctx, "")
}
