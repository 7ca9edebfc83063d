package repository

import (
	"context"

	"coliving-platform/backend/internal/audit/domain"
)

// Repository defines persistence for audit events.
type Repository interface {
	Create(ctx context.Context, e *domain.Event) error
	ListBySubject(ctx context.Context, subject string, limit int) ([]*domain.Event, error)
}
