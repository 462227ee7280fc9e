package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sessionguard/internal/account/domain"
)

// PostgresRepository implements Repository on the accounts table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an account repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, email, password_hash, is_active, failed_login_attempts,
	last_failed_login_at, locked, lockout_expires_at, created_at, updated_at`

// GetByID returns the account for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetByEmail returns the account for email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

// Create persists the account. The account must have ID and Email set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.Email, a.PasswordHash, a.Active, a.FailedLoginAttempts,
		timeToNullTime(a.LastFailedLoginAt), a.Locked, timeToNullTime(a.LockoutExpiresAt),
		a.CreatedAt, a.UpdatedAt,
	)
	return err
}

// UpdateSecurityState overwrites the lockout fields in one row-atomic update.
func (r *PostgresRepository) UpdateSecurityState(ctx context.Context, id string, state domain.SecurityState) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET failed_login_attempts = $2, last_failed_login_at = $3,
			locked = $4, lockout_expires_at = $5, updated_at = $6
		WHERE id = $1`,
		id, state.FailedLoginAttempts, timeToNullTime(state.LastFailedLoginAt),
		state.Locked, timeToNullTime(state.LockoutExpiresAt), time.Now().UTC(),
	)
	return err
}

// UpdatePasswordHash replaces the stored password hash.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, time.Now().UTC(),
	)
	return err
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var (
		a          domain.Account
		lastFailed sql.NullTime
		lockoutExp sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Active, &a.FailedLoginAttempts,
		&lastFailed, &a.Locked, &lockoutExp, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.LastFailedLoginAt = nullTimeToPtr(lastFailed)
	a.LockoutExpiresAt = nullTimeToPtr(lockoutExp)
	return &a, nil
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
