package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coliving-platform/backend/internal/config"
	identitydomain "coliving-platform/backend/internal/identity/domain"
	userdomain "coliving-platform/backend/internal/user/domain"
)

func TestOpen_Bolt(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{StorageBackend: config.StorageBolt, BoltPath: filepath.Join(t.TempDir(), "coliving.db")}

	st, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	assert.Nil(t, st.Audit)
	assert.Empty(t, st.Pingers)

	now := time.Now().UTC()
	require.NoError(t, st.Credentials.Create(ctx, &identitydomain.Credential{
		ID: "c1", Subject: "s1", Email: "bo@example.com", PasswordHash: "x", CreatedAt: now, UpdatedAt: now,
	}))
	cred, err := st.Credentials.GetByEmail(ctx, "bo@example.com")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "s1", cred.Subject)

	require.NoError(t, st.Profiles.Upsert(ctx, &userdomain.Profile{ID: "s1", Email: "bo@example.com"}))
	p, err := st.Profiles.GetByID(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, userdomain.UserTypeUser, p.UserType)

	require.NotNil(t, st.Revocations)
	require.NoError(t, st.Revocations.Revoke(ctx, "jti-1", now.Add(time.Hour)))
	revoked, err := st.Revocations.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{StorageBackend: "mongo"})
	assert.Error(t, err)

	_, err = Open(context.Background(), &config.Config{StorageBackend: config.StoragePostgres})
	assert.Error(t, err)

	_, err = Open(context.Background(), &config.Config{StorageBackend: config.StorageBolt})
	assert.Error(t, err)
}
