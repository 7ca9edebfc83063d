// Package revocation keeps a denylist of refresh token ids revoked at logout.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// List records revoked token ids until their natural expiry.
type List interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Nop is used when no revocation backend is configured: nothing is ever revoked.
type Nop struct{}

func (Nop) Revoke(context.Context, string, time.Time) error  { return nil }
func (Nop) IsRevoked(context.Context, string) (bool, error) { return false, nil }

const keyPrefix = "coliving:revoked:"

// RedisList stores revoked ids as keys expiring with the token.
type RedisList struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisList returns a List backed by client.
func NewRedisList(client redis.UniversalClient) *RedisList {
	return &RedisList{client: client, now: time.Now}
}

// Revoke marks tokenID revoked until the given time. Ids already past until are ignored.
func (l *RedisList) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return nil
	}
	ttl := until.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, keyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke %s: %w", tokenID, err)
	}
	return nil
}

// IsRevoked reports whether tokenID is on the list.
func (l *RedisList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	err := l.client.Get(ctx, keyPrefix+tokenID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
