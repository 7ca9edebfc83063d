package domain

import "time"

// TokenClass tags a token as short-lived access or long-lived refresh.
type TokenClass string

const (
	TokenClassAccess  TokenClass = "access"
	TokenClassRefresh TokenClass = "refresh"
)

// Fixed lifetimes per token class. Cookie max-age follows the same values.
const (
	AccessLifetime  = 15 * time.Minute
	RefreshLifetime = 7 * 24 * time.Hour
)

// DefaultRole is assigned when claims carry no role.
const DefaultRole = "user"

// Lifetime returns the validity window for the class, or 0 for an unknown class.
func (c TokenClass) Lifetime() time.Duration {
	switch c {
	case TokenClassAccess:
		return AccessLifetime
	case TokenClassRefresh:
		return RefreshLifetime
	default:
		return 0
	}
}

// Valid reports whether c is a known token class.
func (c TokenClass) Valid() bool {
	return c == TokenClassAccess || c == TokenClassRefresh
}

// Claims is the identity payload embedded in every session token.
// IssuedAt and ExpiresAt are set by the codec; values supplied by callers are ignored.
type Claims struct {
	Subject       string
	Email         string
	DisplayName   string // optional
	EmailVerified bool
	Role          string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// RoleOrDefault returns the role, or DefaultRole when empty.
func (c Claims) RoleOrDefault() string {
	if c.Role == "" {
		return DefaultRole
	}
	return c.Role
}

// Identity returns a copy of c with the codec-owned timestamps zeroed.
func (c Claims) Identity() Claims {
	c.IssuedAt = time.Time{}
	c.ExpiresAt = time.Time{}
	return c
}

// Token is a decoded token: its claims plus the metadata the codec attaches.
type Token struct {
	Claims
	Class TokenClass
	// ID is the unique token id (jti).
	ID string
	// RefreshID is the jti of the refresh token an access token was minted from; empty otherwise.
	RefreshID string
	Issuer    string
}

// Pair is the access and refresh token held by one client.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// State is the client-visible session state produced by gateway actions.
type State string

const (
	StateAnonymous      State = "anonymous"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
	StateRefreshFailed  State = "refresh_failed"
)
