package repository

import (
	"context"
	"database/sql"

	"coliving-platform/backend/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the event. The event must have ID set; replaying an id is a no-op.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Event) error {
	const q = `INSERT INTO audit_logs (id, subject, action, outcome, reason, path, ip, token_fp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, q, e.ID, e.Subject, e.Action, e.Outcome, e.Reason, e.Path, e.IP, e.TokenFP, e.CreatedAt)
	return err
}

// ListBySubject returns the newest events for subject, at most limit (default 50).
func (r *PostgresRepository) ListBySubject(ctx context.Context, subject string, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, subject, action, outcome, reason, path, ip, token_fp, created_at
		FROM audit_logs WHERE subject = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, subject, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.Subject, &e.Action, &e.Outcome, &e.Reason, &e.Path, &e.IP, &e.TokenFP, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
