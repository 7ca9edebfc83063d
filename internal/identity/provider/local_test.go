package provider

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"coliving-platform/backend/internal/identity/domain"
	"coliving-platform/backend/internal/identity/repository"
	"coliving-platform/backend/internal/security"
)

type memCredentialRepo struct {
	mu      sync.Mutex
	byEmail map[string]*domain.Credential
	failGet bool
}

func newMemCredentialRepo() *memCredentialRepo {
	return &memCredentialRepo{byEmail: map[string]*domain.Credential{}}
}

func (r *memCredentialRepo) GetByEmail(ctx context.Context, email string) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failGet {
		return nil, errors.New("connection refused")
	}
	c, ok := r.byEmail[email]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *memCredentialRepo) Create(ctx context.Context, c *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[c.Email]; ok {
		return repository.ErrDuplicate
	}
	cp := *c
	r.byEmail[c.Email] = &cp
	return nil
}

func (r *memCredentialRepo) SetEmailVerified(ctx context.Context, email string, verified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byEmail[email]
	if !ok {
		return repository.ErrNotFound
	}
	c.EmailVerified = verified
	return nil
}

func (r *memCredentialRepo) UpdatePasswordHash(ctx context.Context, email, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byEmail[email]
	if !ok {
		return repository.ErrNotFound
	}
	c.PasswordHash = hash
	return nil
}

const goodPassword = "Str0ng!Pass"

func TestLocal_RegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(newMemCredentialRepo(), security.NewHasher(bcrypt.MinCost), false)

	v, err := l.Register(ctx, domain.Registration{Email: " Ana@Example.com ", Password: goodPassword, FullName: "Ana", UserType: "owner", BusinessName: "Ana Homes"})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", v.Email)
	assert.Equal(t, "owner", v.Role)
	assert.False(t, v.EmailVerified)
	assert.NotEmpty(t, v.Subject)

	got, err := l.Authenticate(ctx, "ana@example.com", goodPassword)
	require.NoError(t, err)
	assert.Equal(t, v.Subject, got.Subject)
	assert.Equal(t, "Ana", got.DisplayName)
	assert.Equal(t, domain.ProviderLocal, got.Provider)

	require.NoError(t, l.VerifyEmail(ctx, "ANA@example.com"))
	got, err = l.Authenticate(ctx, "ana@example.com", goodPassword)
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)
}

func TestLocal_RejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(newMemCredentialRepo(), security.NewHasher(bcrypt.MinCost), true)
	_, err := l.Register(ctx, domain.Registration{Email: "bo@example.com", Password: goodPassword, UserType: "user"})
	require.NoError(t, err)

	cases := []struct{ email, password string }{
		{"bo@example.com", "Wrong!Pass1"},
		{"nobody@example.com", goodPassword},
		{"", goodPassword},
		{"bo@example.com", ""},
	}
	for _, c := range cases {
		_, err := l.Authenticate(ctx, c.email, c.password)
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials, "%s/%s", c.email, c.password)
	}
}

func TestLocal_RegisterErrors(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(newMemCredentialRepo(), security.NewHasher(bcrypt.MinCost), false)
	_, err := l.Register(ctx, domain.Registration{Email: "c@example.com", Password: goodPassword})
	require.NoError(t, err)

	_, err = l.Register(ctx, domain.Registration{Email: "C@example.com", Password: goodPassword})
	assert.ErrorIs(t, err, domain.ErrEmailAlreadyRegistered)

	for _, pw := range []string{"Sh0rt!", "nouppercase1!", "NOLOWERCASE1!", "NoNumbers!!", "NoSymbol123"} {
		_, err := l.Register(ctx, domain.Registration{Email: "d@example.com", Password: pw})
		assert.ErrorIs(t, err, domain.ErrWeakPassword, pw)
	}
}

func TestLocal_AdminCannotSelfRegister(t *testing.T) {
	l := NewLocal(newMemCredentialRepo(), security.NewHasher(bcrypt.MinCost), false)
	v, err := l.Register(context.Background(), domain.Registration{Email: "e@example.com", Password: goodPassword, UserType: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "user", v.Role)
}

func TestLocal_RepositoryFailureIsUnavailable(t *testing.T) {
	repo := newMemCredentialRepo()
	repo.failGet = true
	l := NewLocal(repo, security.NewHasher(bcrypt.MinCost), false)
	_, err := l.Authenticate(context.Background(), "a@example.com", goodPassword)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}
