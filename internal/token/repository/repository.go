package repository

import (
	"context"
	"time"

	"sessionguard/internal/token/domain"
)

// OwnerAggregate holds per-store aggregation used for session stats.
type OwnerAggregate struct {
	ActiveSessions int64
	ActiveOwners   int64
	ExpiredSince   int64
}

// Repository defines persistence for issued tokens. All writes are row-atomic;
// no method requires a cross-row transaction.
type Repository interface {
	Insert(ctx context.Context, t *domain.Token) error
	GetByID(ctx context.Context, id string) (*domain.Token, error)
	// Revoke marks the token revoked with the given timestamp and reason.
	// Already-revoked and missing rows are left untouched; the bool reports whether a row changed.
	Revoke(ctx context.Context, id string, at time.Time, reason domain.RevocationReason) (bool, error)
	// ListActiveByOwner returns non-revoked, non-expired tokens of the given kind, newest first.
	ListActiveByOwner(ctx context.Context, ownerID string, kind domain.Kind, now time.Time) ([]*domain.Token, error)
	// RevokeByOwnerIssuedWindow revokes non-revoked tokens of the given kind for the owner
	// whose issued_at falls in [start, end]. Returns the number of rows revoked.
	RevokeByOwnerIssuedWindow(ctx context.Context, ownerID string, kind domain.Kind, start, end, at time.Time, reason domain.RevocationReason) (int64, error)
	// RevokeAllByOwner revokes every non-revoked token (both kinds) for the owner,
	// skipping excludeID when non-empty. Returns the number of rows revoked.
	RevokeAllByOwner(ctx context.Context, ownerID, excludeID string, at time.Time, reason domain.RevocationReason) (int64, error)
	// RevokeExpired revokes every non-revoked token whose expires_at is in the past.
	RevokeExpired(ctx context.Context, now time.Time, reason domain.RevocationReason) (int64, error)
	// DeleteExpiredBefore hard-deletes rows whose expires_at is before cutoff. Storage hygiene only.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
	// Aggregate returns active-session counts and the number of sessions that expired since the
	// given instant. Session here means refresh token.
	Aggregate(ctx context.Context, now, expiredSince time.Time) (*OwnerAggregate, error)
}
