package repository

import (
	"context"
	"time"

	"coliving-platform/backend/internal/user/domain"
)

// Repository defines persistence for directory profiles.
type Repository interface {
	// GetByID returns the profile for a subject, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
	// Upsert creates the profile or replaces its mutable fields.
	Upsert(ctx context.Context, p *domain.Profile) error
	// TouchLastLogin records a successful login. Missing profiles are ignored.
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}
