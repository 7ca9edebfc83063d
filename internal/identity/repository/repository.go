package repository

import (
	"context"
	"errors"

	"coliving-platform/backend/internal/identity/domain"
)

// ErrNotFound is returned by updates addressed at a credential that does not exist.
var ErrNotFound = errors.New("credential not found")

// ErrDuplicate is returned by Create when the email or subject is already taken.
var ErrDuplicate = errors.New("credential already exists")

// Repository defines persistence for local password credentials.
type Repository interface {
	// GetByEmail returns the credential for a normalized email, or nil if not found.
	GetByEmail(ctx context.Context, email string) (*domain.Credential, error)
	Create(ctx context.Context, c *domain.Credential) error
	SetEmailVerified(ctx context.Context, email string, verified bool) error
	UpdatePasswordHash(ctx context.Context, email, passwordHash string) error
}
