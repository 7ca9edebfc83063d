// Package repository persists revoked session token ids in the service's own database, for
// deployments without Redis. Both implementations satisfy revocation.List.
package repository

import (
	"context"
	"time"
)

// Repository stores revoked token ids until their natural expiry.
type Repository interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	// PurgeExpired deletes entries whose token has expired anyway and returns how many went.
	PurgeExpired(ctx context.Context) (int, error)
}
