package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"coliving-platform/backend/internal/user/domain"
)

func newBoltRepo(t *testing.T) *BoltRepository {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "profiles.db"), 0o600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	r, err := NewBoltRepository(db)
	require.NoError(t, err)
	return r
}

func TestBoltRepository_UpsertKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	r := newBoltRepo(t)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return t0 }

	require.NoError(t, r.Upsert(ctx, &domain.Profile{ID: "u1", Email: "a@example.com", FullName: "Ana"}))
	r.now = func() time.Time { return t0.Add(time.Hour) }
	require.NoError(t, r.Upsert(ctx, &domain.Profile{ID: "u1", Email: "a@example.com", FullName: "Ana B", UserType: domain.UserTypeOwner, BusinessName: "B"}))

	p, err := r.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Ana B", p.FullName)
	assert.Equal(t, domain.UserTypeOwner, p.UserType)
	assert.True(t, p.CreatedAt.Equal(t0))
	assert.True(t, p.UpdatedAt.Equal(t0.Add(time.Hour)))
}

func TestBoltRepository_TouchLastLogin(t *testing.T) {
	ctx := context.Background()
	r := newBoltRepo(t)
	at := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, r.TouchLastLogin(ctx, "missing", at))
	p, err := r.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, r.Upsert(ctx, &domain.Profile{ID: "u1", Email: "a@example.com"}))
	require.NoError(t, r.TouchLastLogin(ctx, "u1", at))
	p, err = r.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, p.LastLoginAt)
	assert.True(t, p.LastLoginAt.Equal(at))

	// A later upsert without LastLoginAt keeps the recorded login.
	require.NoError(t, r.Upsert(ctx, &domain.Profile{ID: "u1", Email: "a@example.com", FullName: "Ana"}))
	p, err = r.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, p.LastLoginAt)
}

func TestBoltRepository_RejectsInvalid(t *testing.T) {
	r := newBoltRepo(t)
	err := r.Upsert(context.Background(), &domain.Profile{ID: "u1", Email: "o@example.com", UserType: domain.UserTypeOwner})
	assert.Error(t, err)
}
