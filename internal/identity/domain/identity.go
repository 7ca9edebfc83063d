package domain

import (
	"errors"
	"strings"
	"time"
)

// Errors reported by identity providers and the auth gateway. Handlers map them to HTTP statuses.
var (
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrEmailNotVerified        = errors.New("email address not verified")
	ErrProviderUnavailable     = errors.New("identity provider unavailable")
	ErrEmailAlreadyRegistered  = errors.New("email already registered")
	ErrRegistrationUnsupported = errors.New("identity provider does not support registration")
	ErrWeakPassword            = errors.New("password does not meet policy")
	ErrInvalidRegistration     = errors.New("invalid registration")
	ErrVerificationUnsupported = errors.New("identity provider does not send verification emails")
	ErrAlreadyVerified         = errors.New("email address already verified")
)

// ProviderKind names an identity provider backend.
type ProviderKind string

const (
	ProviderLocal    ProviderKind = "local"
	ProviderFirebase ProviderKind = "firebase"
	ProviderSupabase ProviderKind = "supabase"
)

// Verdict is what an identity provider asserts after a successful credential check.
type Verdict struct {
	Subject       string
	Email         string
	DisplayName   string
	EmailVerified bool
	// Role is optional; empty means the default role.
	Role     string
	Provider ProviderKind
}

// Credential is a password identity held by the local provider.
type Credential struct {
	ID            string
	Subject       string
	Email         string
	PasswordHash  string
	DisplayName   string
	Role          string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Registration is a sign-up request. UserType is "user" (seeker) or "owner".
type Registration struct {
	Email        string
	Password     string
	FullName     string
	BusinessName string
	UserType     string
}

// NormalizeEmail lowercases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
