package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sessionguard/internal/token/domain"
)

// PostgresRepository implements Repository on a Postgres tokens table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a token repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const tokenColumns = `id, owner_id, kind, issued_at, expires_at, is_revoked, revoked_at, revoked_by,
	device_platform, device_browser, device_type, source_ip, last_seen_at`

// Insert persists the token row. The token must have ID, OwnerID, Kind, and both timestamps set.
func (r *PostgresRepository) Insert(ctx context.Context, t *domain.Token) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.OwnerID, string(t.Kind), t.IssuedAt, t.ExpiresAt,
		t.Revoked, timeToNullTime(t.RevokedAt), reasonToNullString(t.RevokedBy),
		t.Device.Platform, t.Device.Browser, t.Device.DeviceType, t.SourceIP,
		timeToNullTime(t.LastSeenAt),
	)
	return err
}

// GetByID returns the token for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Token, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1`, id)
	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// Revoke marks the token revoked. The is_revoked guard keeps revocation monotonic:
// an already-revoked row is never rewritten with a later timestamp or different reason.
func (r *PostgresRepository) Revoke(ctx context.Context, id string, at time.Time, reason domain.RevocationReason) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tokens SET is_revoked = TRUE, revoked_at = $2, revoked_by = $3
		WHERE id = $1 AND NOT is_revoked`,
		id, at, string(reason),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListActiveByOwner returns non-revoked tokens of the given kind that expire after now, newest first.
func (r *PostgresRepository) ListActiveByOwner(ctx context.Context, ownerID string, kind domain.Kind, now time.Time) ([]*domain.Token, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+tokenColumns+` FROM tokens
		WHERE owner_id = $1 AND kind = $2 AND NOT is_revoked AND expires_at > $3
		ORDER BY issued_at DESC`,
		ownerID, string(kind), now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RevokeByOwnerIssuedWindow revokes the owner's non-revoked tokens of the given kind
// issued in [start, end]. Returns the number of rows revoked.
func (r *PostgresRepository) RevokeByOwnerIssuedWindow(ctx context.Context, ownerID string, kind domain.Kind, start, end, at time.Time, reason domain.RevocationReason) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tokens SET is_revoked = TRUE, revoked_at = $5, revoked_by = $6
		WHERE owner_id = $1 AND kind = $2 AND NOT is_revoked
		  AND issued_at >= $3 AND issued_at <= $4`,
		ownerID, string(kind), start, end, at, string(reason),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RevokeAllByOwner revokes every non-revoked token for the owner, both kinds,
// skipping excludeID when non-empty. Returns the number of rows revoked.
func (r *PostgresRepository) RevokeAllByOwner(ctx context.Context, ownerID, excludeID string, at time.Time, reason domain.RevocationReason) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tokens SET is_revoked = TRUE, revoked_at = $3, revoked_by = $4
		WHERE owner_id = $1 AND NOT is_revoked AND ($2 = '' OR id <> $2)`,
		ownerID, excludeID, at, string(reason),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RevokeExpired revokes every non-revoked token whose expires_at is at or before now.
// Idempotent: rows revoked by a previous sweep are not touched again.
func (r *PostgresRepository) RevokeExpired(ctx context.Context, now time.Time, reason domain.RevocationReason) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tokens SET is_revoked = TRUE, revoked_at = $1, revoked_by = $2
		WHERE NOT is_revoked AND expires_at <= $1`,
		now, string(reason),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpiredBefore hard-deletes rows whose expires_at is before cutoff.
func (r *PostgresRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateLastSeen sets the token's last-seen timestamp. Returns an error if the update fails.
func (r *PostgresRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE tokens SET last_seen_at = $2 WHERE id = $1`, id, at)
	return err
}

// Aggregate returns active refresh-token counts and the number of refresh tokens that
// expired at or after expiredSince.
func (r *PostgresRepository) Aggregate(ctx context.Context, now, expiredSince time.Time) (*OwnerAggregate, error) {
	var agg OwnerAggregate
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE NOT is_revoked AND expires_at > $1),
			COUNT(DISTINCT owner_id) FILTER (WHERE NOT is_revoked AND expires_at > $1),
			COUNT(*) FILTER (WHERE expires_at >= $2 AND expires_at <= $1)
		FROM tokens WHERE kind = 'refresh'`,
		now, expiredSince,
	).Scan(&agg.ActiveSessions, &agg.ActiveOwners, &agg.ExpiredSince)
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanToken(s scanner) (*domain.Token, error) {
	var (
		t         domain.Token
		kind      string
		revokedAt sql.NullTime
		revokedBy sql.NullString
		lastSeen  sql.NullTime
	)
	err := s.Scan(
		&t.ID, &t.OwnerID, &kind, &t.IssuedAt, &t.ExpiresAt, &t.Revoked, &revokedAt, &revokedBy,
		&t.Device.Platform, &t.Device.Browser, &t.Device.DeviceType, &t.SourceIP, &lastSeen,
	)
	if err != nil {
		return nil, err
	}
	t.Kind = domain.Kind(kind)
	t.RevokedAt = nullTimeToPtr(revokedAt)
	if revokedBy.Valid {
		t.RevokedBy = domain.RevocationReason(revokedBy.String)
	}
	t.LastSeenAt = nullTimeToPtr(lastSeen)
	return &t, nil
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}

func reasonToNullString(r domain.RevocationReason) sql.NullString {
	if r == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(r), Valid: true}
}
