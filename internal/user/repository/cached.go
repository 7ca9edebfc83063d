package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"coliving-platform/backend/internal/user/domain"
)

const profileKeyPrefix = "coliving:profile:"

// Cached is a read-through Redis cache in front of another Repository. Cache errors are logged
// and fall through to the backing store; writes invalidate the cached entry.
type Cached struct {
	inner  Repository
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewCached wraps inner. ttl <= 0 defaults to ten minutes.
func NewCached(inner Repository, client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (c *Cached) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	raw, err := c.client.Get(ctx, profileKeyPrefix+id).Bytes()
	switch {
	case err == nil:
		var p domain.Profile
		if jerr := json.Unmarshal(raw, &p); jerr == nil {
			return &p, nil
		}
		c.logger.Warn("profile cache: bad entry", zap.String("subject", id))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("profile cache: get failed", zap.String("subject", id), zap.Error(err))
	}

	p, err := c.inner.GetByID(ctx, id)
	if err != nil || p == nil {
		return p, err
	}
	if raw, err := json.Marshal(p); err == nil {
		if err := c.client.Set(ctx, profileKeyPrefix+id, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("profile cache: set failed", zap.String("subject", id), zap.Error(err))
		}
	}
	return p, nil
}

func (c *Cached) Upsert(ctx context.Context, p *domain.Profile) error {
	if err := c.inner.Upsert(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx, p.ID)
	return nil
}

func (c *Cached) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	if err := c.inner.TouchLastLogin(ctx, id, at); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *Cached) invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, profileKeyPrefix+id).Err(); err != nil {
		c.logger.Warn("profile cache: invalidate failed", zap.String("subject", id), zap.Error(err))
	}
}
