package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"coliving-platform/backend/internal/identity/domain"
)

func newBolt(t *testing.T) *BoltRepository {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "id.db"), 0o600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	r, err := NewBoltRepository(db)
	require.NoError(t, err)
	return r
}

func TestBoltRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	r := newBolt(t)

	got, err := r.GetByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Now().UTC().Truncate(time.Second)
	c := &domain.Credential{ID: "c1", Subject: "s1", Email: "ana@example.com", PasswordHash: "h", Role: "owner", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, r.Create(ctx, c))
	require.ErrorIs(t, r.Create(ctx, c), ErrDuplicate)

	got, err = r.GetByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s1", got.Subject)
	assert.Equal(t, "owner", got.Role)
	assert.False(t, got.EmailVerified)
	assert.True(t, got.CreatedAt.Equal(now))
}

func TestBoltRepository_Updates(t *testing.T) {
	ctx := context.Background()
	r := newBolt(t)
	require.NoError(t, r.Create(ctx, &domain.Credential{ID: "c1", Subject: "s1", Email: "ana@example.com", PasswordHash: "old"}))

	require.NoError(t, r.SetEmailVerified(ctx, "ana@example.com", true))
	require.NoError(t, r.UpdatePasswordHash(ctx, "ana@example.com", "new"))
	got, err := r.GetByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)
	assert.Equal(t, "new", got.PasswordHash)

	assert.ErrorIs(t, r.SetEmailVerified(ctx, "missing@example.com", true), ErrNotFound)
	assert.ErrorIs(t, r.UpdatePasswordHash(ctx, "missing@example.com", "x"), ErrNotFound)
}
