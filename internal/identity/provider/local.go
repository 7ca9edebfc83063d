package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"coliving-platform/backend/internal/identity/domain"
	"coliving-platform/backend/internal/identity/repository"
	"coliving-platform/backend/internal/security"
)

// Local authenticates against bcrypt credentials in the local repository and can register accounts.
type Local struct {
	repo       repository.Repository
	hasher     *security.Hasher
	autoVerify bool
	now        func() time.Time
}

// NewLocal returns a local provider. When autoVerify is true, new accounts start verified
// (development only).
func NewLocal(repo repository.Repository, hasher *security.Hasher, autoVerify bool) *Local {
	return &Local{repo: repo, hasher: hasher, autoVerify: autoVerify, now: time.Now}
}

func (l *Local) Kind() domain.ProviderKind { return domain.ProviderLocal }

// Authenticate checks the password against the stored hash. Unknown emails cost the same bcrypt
// work as wrong passwords.
func (l *Local) Authenticate(ctx context.Context, email, password string) (domain.Verdict, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return domain.Verdict{}, domain.ErrInvalidCredentials
	}
	cred, err := l.repo.GetByEmail(ctx, email)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	if cred == nil {
		_ = l.hasher.CompareDummy([]byte(password))
		return domain.Verdict{}, domain.ErrInvalidCredentials
	}
	if err := l.hasher.Compare(cred.PasswordHash, []byte(password)); err != nil {
		return domain.Verdict{}, domain.ErrInvalidCredentials
	}
	return verdictOf(cred), nil
}

// Register creates a credential. Owners get role "owner"; everyone else "user".
func (l *Local) Register(ctx context.Context, reg domain.Registration) (domain.Verdict, error) {
	email := domain.NormalizeEmail(reg.Email)
	if err := validatePassword(reg.Password); err != nil {
		return domain.Verdict{}, err
	}
	hash, err := l.hasher.Hash([]byte(reg.Password))
	if err != nil {
		return domain.Verdict{}, err
	}
	role := "user"
	if reg.UserType == "owner" {
		role = "owner"
	}
	now := l.now().UTC()
	cred := &domain.Credential{
		ID:            uuid.NewString(),
		Subject:       uuid.NewString(),
		Email:         email,
		PasswordHash:  hash,
		DisplayName:   strings.TrimSpace(reg.FullName),
		Role:          role,
		EmailVerified: l.autoVerify,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.repo.Create(ctx, cred); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.Verdict{}, domain.ErrEmailAlreadyRegistered
		}
		return domain.Verdict{}, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	return verdictOf(cred), nil
}

// VerifyEmail marks the account verified; it stands in for the provider's verification link.
func (l *Local) VerifyEmail(ctx context.Context, email string) error {
	return l.repo.SetEmailVerified(ctx, domain.NormalizeEmail(email), true)
}

func verdictOf(c *domain.Credential) domain.Verdict {
	return domain.Verdict{
		Subject:       c.Subject,
		Email:         c.Email,
		DisplayName:   c.DisplayName,
		EmailVerified: c.EmailVerified,
		Role:          c.Role,
		Provider:      domain.ProviderLocal,
	}
}

const passwordSymbols = "@$!%*?&"

// validatePassword requires 8+ characters with upper, lower, digit and one of @$!%*?&.
func validatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: must be at least 8 characters", domain.ErrWeakPassword)
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}
	switch {
	case !hasUpper:
		return fmt.Errorf("%w: must contain an uppercase letter", domain.ErrWeakPassword)
	case !hasLower:
		return fmt.Errorf("%w: must contain a lowercase letter", domain.ErrWeakPassword)
	case !hasNumber:
		return fmt.Errorf("%w: must contain a number", domain.ErrWeakPassword)
	case !hasSymbol:
		return fmt.Errorf("%w: must contain one of %s", domain.ErrWeakPassword, passwordSymbols)
	}
	return nil
}
