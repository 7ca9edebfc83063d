package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"coliving-platform/backend/internal/identity/domain"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a credential repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByEmail returns the credential for email, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Credential, error) {
	const q = `SELECT id, subject, email, password_hash, display_name, role, email_verified, created_at, updated_at
		FROM local_identities WHERE email = $1`
	var c domain.Credential
	err := r.db.QueryRowContext(ctx, q, email).Scan(
		&c.ID, &c.Subject, &c.Email, &c.PasswordHash, &c.DisplayName, &c.Role, &c.EmailVerified, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// Create persists the credential. ID and Subject must be set by the caller.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Credential) error {
	const q = `INSERT INTO local_identities
		(id, subject, email, password_hash, display_name, role, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, q,
		c.ID, c.Subject, c.Email, c.PasswordHash, c.DisplayName, c.Role, c.EmailVerified, c.CreatedAt, c.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

// SetEmailVerified flips the verified flag. Returns ErrNotFound when no row matches.
func (r *PostgresRepository) SetEmailVerified(ctx context.Context, email string, verified bool) error {
	const q = `UPDATE local_identities SET email_verified = $2, updated_at = $3 WHERE email = $1`
	return r.execOne(ctx, q, email, verified, time.Now().UTC())
}

// UpdatePasswordHash replaces the stored hash. Returns ErrNotFound when no row matches.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, email, passwordHash string) error {
	const q = `UPDATE local_identities SET password_hash = $2, updated_at = $3 WHERE email = $1`
	return r.execOne(ctx, q, email, passwordHash, time.Now().UTC())
}

func (r *PostgresRepository) execOne(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
