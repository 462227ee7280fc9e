// Package service implements session lifecycle management on top of the token store:
// creation under a per-account concurrency cap, enumeration, correlated revocation of
// minted token pairs, and expiry sweeps.
package service

import (
	"context"
	"errors"
	"sort"
	"time"

	accountdomain "sessionguard/internal/account/domain"
	"sessionguard/internal/security"
	"sessionguard/internal/telemetry"
	"sessionguard/internal/token/domain"
	tokenrepo "sessionguard/internal/token/repository"
)

// Sentinel errors for the session manager.
var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrInvalidConcurrencyLimit = errors.New("max concurrent sessions must be >= 1")
)

// TokenStore is the minimal token repository needed by the session manager.
type TokenStore interface {
	Insert(ctx context.Context, t *domain.Token) error
	GetByID(ctx context.Context, id string) (*domain.Token, error)
	Revoke(ctx context.Context, id string, at time.Time, reason domain.RevocationReason) (bool, error)
	ListActiveByOwner(ctx context.Context, ownerID string, kind domain.Kind, now time.Time) ([]*domain.Token, error)
	RevokeByOwnerIssuedWindow(ctx context.Context, ownerID string, kind domain.Kind, start, end, at time.Time, reason domain.RevocationReason) (int64, error)
	RevokeAllByOwner(ctx context.Context, ownerID, excludeID string, at time.Time, reason domain.RevocationReason) (int64, error)
	RevokeExpired(ctx context.Context, now time.Time, reason domain.RevocationReason) (int64, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
	Aggregate(ctx context.Context, now, expiredSince time.Time) (*tokenrepo.OwnerAggregate, error)
}

// AccountGetter resolves session owners.
type AccountGetter interface {
	GetByID(ctx context.Context, id string) (*accountdomain.Account, error)
}

// TokenIssuer mints linked access/refresh pairs. Implemented by security.TokenProvider;
// signing and validation stay on the issuer's side of the boundary.
type TokenIssuer interface {
	MintPair(ownerID string) (*security.Pair, error)
}

// Config holds session manager tuning.
type Config struct {
	// MaxConcurrentSessions is the per-account active session cap; must be >= 1.
	MaxConcurrentSessions int
	// CorrelationWindow is the half-width of the issuance window used to find the access
	// tokens minted alongside a refresh token. Defaults to 60s, wide enough to absorb
	// clock skew and multi-step issuance latency.
	CorrelationWindow time.Duration
}

// DefaultCorrelationWindow pairs access tokens with a refresh token issued within
// this distance of it.
const DefaultCorrelationWindow = 60 * time.Second

// Manager creates, enumerates, and revokes sessions. A session is an active refresh-token
// row; its id is the refresh token's id.
type Manager struct {
	tokens   TokenStore
	accounts AccountGetter
	issuer   TokenIssuer
	cfg      Config
	metrics  *telemetry.Metrics
	now      func() time.Time
}

// NewManager returns a Manager with the given dependencies. metrics may be nil.
// Returns ErrInvalidConcurrencyLimit when cfg.MaxConcurrentSessions < 1.
func NewManager(tokens TokenStore, accounts AccountGetter, issuer TokenIssuer, cfg Config, metrics *telemetry.Metrics) (*Manager, error) {
	if cfg.MaxConcurrentSessions < 1 {
		return nil, ErrInvalidConcurrencyLimit
	}
	if cfg.CorrelationWindow <= 0 {
		cfg.CorrelationWindow = DefaultCorrelationWindow
	}
	return &Manager{
		tokens:   tokens,
		accounts: accounts,
		issuer:   issuer,
		cfg:      cfg,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateResult is the outcome of CreateSession.
type CreateResult struct {
	SessionID        string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	// EvictedSessions is how many prior sessions were revoked to stay under the cap.
	// Eviction happens synchronously inside this call, not in the background.
	EvictedSessions int
}

// CreateSession mints a token pair for ownerID and persists both rows with one shared
// issuance instant. When the account is at its concurrency cap, the least-recently-active
// sessions are revoked first, before issuance, so the cap holds at return.
// Returns ErrAccountNotFound when ownerID does not resolve.
func (m *Manager) CreateSession(ctx context.Context, ownerID string, device domain.DeviceInfo, sourceIP string) (*CreateResult, error) {
	acct, err := m.accounts.GetByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}

	active, err := m.tokens.ListActiveByOwner(ctx, ownerID, domain.KindRefresh, m.now())
	if err != nil {
		return nil, err
	}
	evicted := 0
	if len(active) >= m.cfg.MaxConcurrentSessions {
		toEvict := len(active) - m.cfg.MaxConcurrentSessions + 1
		sort.Slice(active, func(i, j int) bool {
			return active[i].LastActivity().Before(active[j].LastActivity())
		})
		for _, sess := range active[:toEvict] {
			if err := m.InvalidateSession(ctx, sess.ID, domain.ReasonConcurrentLimitExceeded); err != nil {
				return nil, err
			}
			evicted++
		}
	}

	pair, err := m.issuer.MintPair(ownerID)
	if err != nil {
		return nil, err
	}
	refresh := &domain.Token{
		ID:        pair.RefreshID,
		OwnerID:   ownerID,
		Kind:      domain.KindRefresh,
		IssuedAt:  pair.IssuedAt,
		ExpiresAt: pair.RefreshExpiresAt,
		Device:    device,
		SourceIP:  sourceIP,
	}
	access := &domain.Token{
		ID:        pair.AccessID,
		OwnerID:   ownerID,
		Kind:      domain.KindAccess,
		IssuedAt:  pair.IssuedAt,
		ExpiresAt: pair.AccessExpiresAt,
		Device:    device,
		SourceIP:  sourceIP,
	}
	if err := m.tokens.Insert(ctx, refresh); err != nil {
		return nil, err
	}
	if err := m.tokens.Insert(ctx, access); err != nil {
		return nil, err
	}
	m.metrics.RecordSessionCreated(ctx)

	return &CreateResult{
		SessionID:        pair.RefreshID,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		EvictedSessions:  evicted,
	}, nil
}

// GetUserSessions returns the owner's active sessions, newest first.
func (m *Manager) GetUserSessions(ctx context.Context, ownerID string) ([]*domain.Token, error) {
	return m.tokens.ListActiveByOwner(ctx, ownerID, domain.KindRefresh, m.now())
}

// InvalidateSession revokes the refresh token with sessionID, then bulk-revokes the
// owner's access tokens issued within the correlation window around the session's
// issuance. The pair shares no common identifier; issuance time is the only link, so
// a second login inside the window gets its access token revoked too. That false
// positive favors security and is intended.
// Unknown ids and non-refresh ids are no-ops.
func (m *Manager) InvalidateSession(ctx context.Context, sessionID string, reason domain.RevocationReason) error {
	t, err := m.tokens.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if t == nil || t.Kind != domain.KindRefresh {
		return nil
	}
	now := m.now()
	changed, err := m.tokens.Revoke(ctx, sessionID, now, reason)
	if err != nil {
		return err
	}
	if changed {
		m.metrics.RecordSessionsRevoked(ctx, 1, string(reason))
	}
	start := t.IssuedAt.Add(-m.cfg.CorrelationWindow)
	end := t.IssuedAt.Add(m.cfg.CorrelationWindow)
	_, err = m.tokens.RevokeByOwnerIssuedWindow(ctx, t.OwnerID, domain.KindAccess, start, end, now, reason)
	return err
}

// InvalidateAllUserSessions revokes every non-revoked token for ownerID, both kinds.
// excludeSessionID, when non-empty, leaves that one refresh token untouched — a user
// changing their own password keeps the session they are using. Returns the number of
// rows revoked for caller-visible reporting.
func (m *Manager) InvalidateAllUserSessions(ctx context.Context, ownerID string, reason domain.RevocationReason, excludeSessionID string) (int64, error) {
	n, err := m.tokens.RevokeAllByOwner(ctx, ownerID, excludeSessionID, m.now(), reason)
	if err != nil {
		return 0, err
	}
	m.metrics.RecordSessionsRevoked(ctx, n, string(reason))
	return n, nil
}

// TouchSession records activity on a session for least-recently-active ordering.
func (m *Manager) TouchSession(ctx context.Context, sessionID string) error {
	return m.tokens.UpdateLastSeen(ctx, sessionID, m.now())
}

// CleanupExpiredSessions revokes every token past its expiry. Idempotent; safe to run on
// any interval.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	n, err := m.tokens.RevokeExpired(ctx, m.now(), domain.ReasonExpired)
	if err != nil {
		return 0, err
	}
	m.metrics.RecordSessionsRevoked(ctx, n, string(domain.ReasonExpired))
	return n, nil
}

// PurgeExpiredBefore hard-deletes token rows whose expiry is older than retention.
// Storage hygiene only; revocation history inside the retention horizon is kept.
func (m *Manager) PurgeExpiredBefore(ctx context.Context, retention time.Duration) (int64, error) {
	return m.tokens.DeleteExpiredBefore(ctx, m.now().Add(-retention))
}

// SessionStats is a read-only aggregation for operational dashboards.
type SessionStats struct {
	TotalActiveSessions    int64
	TotalUsers             int64
	AverageSessionsPerUser float64
	ExpiredSessionsToday   int64
}

// GetSessionStats aggregates active sessions and today's expiries across all accounts.
func (m *Manager) GetSessionStats(ctx context.Context) (*SessionStats, error) {
	now := m.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	agg, err := m.tokens.Aggregate(ctx, now, startOfDay)
	if err != nil {
		return nil, err
	}
	stats := &SessionStats{
		TotalActiveSessions:  agg.ActiveSessions,
		TotalUsers:           agg.ActiveOwners,
		ExpiredSessionsToday: agg.ExpiredSince,
	}
	if agg.ActiveOwners > 0 {
		stats.AverageSessionsPerUser = float64(agg.ActiveSessions) / float64(agg.ActiveOwners)
	}
	return stats, nil
}
