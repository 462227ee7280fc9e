package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sessionguard/internal/audit/domain"
)

// PostgresRepository implements Repository on the security_events and security_alerts tables.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateEvent appends one event row. Events are write-once; there is no update path.
func (r *PostgresRepository) CreateEvent(ctx context.Context, e *domain.SecurityEvent) error {
	owner := sql.NullString{String: e.OwnerID, Valid: e.OwnerID != ""}
	ip := sql.NullString{String: e.SourceIP, Valid: e.SourceIP != ""}
	errMsg := sql.NullString{String: e.ErrorMessage, Valid: e.ErrorMessage != ""}
	meta := sql.NullString{String: e.Metadata, Valid: e.Metadata != ""}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO security_events (id, event_type, owner_id, source_ip, action, success, severity, error_message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, string(e.EventType), owner, ip, e.Action, e.Success, string(e.Severity), errMsg, meta, e.CreatedAt,
	)
	return err
}

// CountEventsByIP counts events of the given type from sourceIP at or after since.
func (r *PostgresRepository) CountEventsByIP(ctx context.Context, eventType domain.EventType, sourceIP string, since time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM security_events
		WHERE event_type = $1 AND source_ip = $2 AND created_at >= $3`,
		string(eventType), sourceIP, since,
	).Scan(&n)
	return n, err
}

// CountDistinctIPsByOwner counts distinct source IPs with events of the given type for
// ownerID at or after since.
func (r *PostgresRepository) CountDistinctIPsByOwner(ctx context.Context, eventType domain.EventType, ownerID string, since time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT source_ip) FROM security_events
		WHERE event_type = $1 AND owner_id = $2 AND source_ip IS NOT NULL AND created_at >= $3`,
		string(eventType), ownerID, since,
	).Scan(&n)
	return n, err
}

// CreateAlert persists the alert. The alert must have ID and Status set.
func (r *PostgresRepository) CreateAlert(ctx context.Context, a *domain.SecurityAlert) error {
	owner := sql.NullString{String: a.OwnerID, Valid: a.OwnerID != ""}
	ip := sql.NullString{String: a.SourceIP, Valid: a.SourceIP != ""}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO security_alerts (id, alert_type, severity, owner_id, source_ip, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, string(a.AlertType), string(a.Severity), owner, ip, a.Description, string(a.Status), a.CreatedAt,
	)
	return err
}

// GetAlertByID returns the alert for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetAlertByID(ctx context.Context, id string) (*domain.SecurityAlert, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, alert_type, severity, owner_id, source_ip, description, status,
			created_at, resolved_at, resolved_by, resolution_notes
		FROM security_alerts WHERE id = $1`, id)
	a, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// ResolveAlert applies a terminal transition. The status = 'open' guard means a second
// resolution attempt changes nothing.
func (r *PostgresRepository) ResolveAlert(ctx context.Context, id string, status domain.AlertStatus, resolvedBy, notes string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE security_alerts SET status = $2, resolved_at = $3, resolved_by = $4, resolution_notes = $5
		WHERE id = $1 AND status = 'open'`,
		id, string(status), at, resolvedBy, notes,
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

// ListAlertsByStatus returns alerts in the given status, newest first, paginated.
func (r *PostgresRepository) ListAlertsByStatus(ctx context.Context, status domain.AlertStatus, limit, offset int32) ([]*domain.SecurityAlert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, alert_type, severity, owner_id, source_ip, description, status,
			created_at, resolved_at, resolved_by, resolution_notes
		FROM security_alerts WHERE status = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		string(status), limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.SecurityAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountEventsSince counts all events at or after since.
func (r *PostgresRepository) CountEventsSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM security_events WHERE created_at >= $1`, since,
	).Scan(&n)
	return n, err
}

// CountEventsByTypeSince returns per-type event counts at or after since.
func (r *PostgresRepository) CountEventsByTypeSince(ctx context.Context, since time.Time) (map[domain.EventType]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*) FROM security_events
		WHERE created_at >= $1 GROUP BY event_type`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.EventType]int64)
	for rows.Next() {
		var (
			t string
			n int64
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		out[domain.EventType(t)] = n
	}
	return out, rows.Err()
}

// CountOpenAlerts counts alerts still in the open state.
func (r *PostgresRepository) CountOpenAlerts(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM security_alerts WHERE status = 'open'`,
	).Scan(&n)
	return n, err
}

// TopSourceIPs returns the most frequent source IPs among failure-flavored events since
// the given instant.
func (r *PostgresRepository) TopSourceIPs(ctx context.Context, since time.Time, limit int32) ([]IPCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT source_ip, COUNT(*) AS n FROM security_events
		WHERE created_at >= $1 AND source_ip IS NOT NULL AND NOT success
		GROUP BY source_ip ORDER BY n DESC LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IPCount
	for rows.Next() {
		var c IPCount
		if err := rows.Scan(&c.SourceIP, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountAlertsBySeveritySince returns per-severity alert counts at or after since.
func (r *PostgresRepository) CountAlertsBySeveritySince(ctx context.Context, since time.Time) (map[domain.AlertSeverity]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT severity, COUNT(*) FROM security_alerts
		WHERE created_at >= $1 GROUP BY severity`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.AlertSeverity]int64)
	for rows.Next() {
		var (
			s string
			n int64
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[domain.AlertSeverity(s)] = n
	}
	return out, rows.Err()
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(s scanner) (*domain.SecurityAlert, error) {
	var (
		a          domain.SecurityAlert
		alertType  string
		severity   string
		owner      sql.NullString
		ip         sql.NullString
		status     string
		resolvedAt sql.NullTime
		resolvedBy sql.NullString
		notes      sql.NullString
	)
	err := s.Scan(&a.ID, &alertType, &severity, &owner, &ip, &a.Description, &status,
		&a.CreatedAt, &resolvedAt, &resolvedBy, &notes)
	if err != nil {
		return nil, err
	}
	a.AlertType = domain.AlertType(alertType)
	a.Severity = domain.AlertSeverity(severity)
	a.OwnerID = owner.String
	a.SourceIP = ip.String
	a.Status = domain.AlertStatus(status)
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	a.ResolvedBy = resolvedBy.String
	a.ResolutionNotes = notes.String
	return &a, nil
}
