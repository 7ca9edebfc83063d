package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"coliving-platform/backend/internal/user/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a profile repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the profile for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	const q = `SELECT id, email, full_name, business_name, user_type, last_login_at, created_at, updated_at
		FROM profiles WHERE id = $1`
	var (
		p         domain.Profile
		lastLogin sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&p.ID, &p.Email, &p.FullName, &p.BusinessName, &p.UserType, &lastLogin, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		p.LastLoginAt = &t
	}
	return &p, nil
}

// Upsert inserts the profile or updates it in place. created_at is kept from the first insert.
func (r *PostgresRepository) Upsert(ctx context.Context, p *domain.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	const q = `INSERT INTO profiles (id, email, full_name, business_name, user_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			business_name = EXCLUDED.business_name,
			user_type = EXCLUDED.user_type,
			updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, q, p.ID, p.Email, p.FullName, p.BusinessName, string(p.UserType), p.CreatedAt, p.UpdatedAt)
	return err
}

// TouchLastLogin sets last_login_at. Returns nil if no row was updated.
func (r *PostgresRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE profiles SET last_login_at = $2 WHERE id = $1`, id, at.UTC())
	return err
}
