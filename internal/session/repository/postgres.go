package repository

import (
	"context"
	"database/sql"
	"time"
)

type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresRepository returns a revocation repository backed by the revoked_tokens table.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

// Revoke records tokenID until the given time. Ids already past until are ignored; revoking twice
// keeps the later expiry.
func (r *PostgresRepository) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" || !until.After(r.now()) {
		return nil
	}
	const q = `INSERT INTO revoked_tokens (id, expires_at) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET expires_at = GREATEST(revoked_tokens.expires_at, EXCLUDED.expires_at)`
	_, err := r.db.ExecContext(ctx, q, tokenID, until.UTC())
	return err
}

// IsRevoked reports whether tokenID is revoked and not yet expired.
func (r *PostgresRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	const q = `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE id = $1 AND expires_at > $2)`
	var revoked bool
	err := r.db.QueryRowContext(ctx, q, tokenID, r.now().UTC()).Scan(&revoked)
	return revoked, err
}

func (r *PostgresRepository) PurgeExpired(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= $1`, r.now().UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
