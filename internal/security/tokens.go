package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"coliving-platform/backend/internal/session/domain"
)

var (
	// ErrMissingSubject is returned when claims without a subject are issued.
	ErrMissingSubject = errors.New("token: subject is required")
	// ErrUnknownTokenClass is returned for a token class other than access or refresh.
	ErrUnknownTokenClass = errors.New("token: unknown token class")
	// ErrWeakSecret is returned when the HMAC secret is too short.
	ErrWeakSecret = errors.New("token: secret must be at least 16 bytes")
)

const minSecretLen = 16

// tokenClaims is the JSON payload of a session token.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	DisplayName   string `json:"name,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	Role          string `json:"role"`
	TokenType     string `json:"token_type"`
	RefreshID     string `json:"rid,omitempty"`
}

// TokenCodec issues, decodes and verifies signed session tokens (JWT).
// Signing keys are read-only after construction; a TokenCodec is safe for concurrent use.
type TokenCodec struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	now       func() time.Time
}

// NewHMACCodec returns a codec signing with HS256 and the given server secret.
func NewHMACCodec(secret []byte, issuer string) (*TokenCodec, error) {
	if len(secret) < minSecretLen {
		return nil, ErrWeakSecret
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &TokenCodec{
		method:    jwt.SigningMethodHS256,
		signKey:   key,
		verifyKey: key,
		issuer:    issuer,
		now:       time.Now,
	}, nil
}

// NewKeyPairCodec returns a codec signing with RS256 or ES256 depending on the private key type.
func NewKeyPairCodec(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer string) (*TokenCodec, error) {
	if privateKey == nil || publicKey == nil {
		return nil, ErrInvalidKey
	}
	var method jwt.SigningMethod
	switch privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	if KeyAlg(publicKey) != method.Alg() {
		return nil, ErrInvalidKey
	}
	return &TokenCodec{
		method:    method,
		signKey:   privateKey,
		verifyKey: publicKey,
		issuer:    issuer,
		now:       time.Now,
	}, nil
}

// WithClock returns a copy of the codec that reads the current time from now.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	cp := *c
	cp.now = now
	return &cp
}

// Algorithm returns the JWT alg header value used for signing.
func (c *TokenCodec) Algorithm() string {
	return c.method.Alg()
}

// Issue signs claims as a token of the given class. Issued-at and expiry are computed here
// from the class lifetime; any timestamps on claims are ignored.
func (c *TokenCodec) Issue(claims domain.Claims, class domain.TokenClass) (string, error) {
	if !class.Valid() {
		return "", ErrUnknownTokenClass
	}
	now := c.clock()
	token, _, err := c.issue(claims, class, now, now.Add(class.Lifetime()), "")
	return token, err
}

// IssuePair issues a refresh token and an access token bound to it.
func (c *TokenCodec) IssuePair(claims domain.Claims) (domain.Pair, error) {
	now := c.clock()
	refreshExp := now.Add(domain.RefreshLifetime)
	refresh, refreshID, err := c.issue(claims, domain.TokenClassRefresh, now, refreshExp, "")
	if err != nil {
		return domain.Pair{}, err
	}
	accessExp := now.Add(domain.AccessLifetime)
	access, _, err := c.issue(claims, domain.TokenClassAccess, now, accessExp, refreshID)
	if err != nil {
		return domain.Pair{}, err
	}
	return domain.Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// IssueFromRefresh mints a new access token from a verified refresh token. The access token
// expires at the earlier of the access lifetime and the refresh token's own expiry, and records
// the refresh token id. The refresh token itself is not modified.
func (c *TokenCodec) IssueFromRefresh(refresh domain.Token) (string, time.Time, error) {
	if refresh.Class != domain.TokenClassRefresh {
		return "", time.Time{}, fmt.Errorf("%w: got %q, want %q", ErrMalformedToken, refresh.Class, domain.TokenClassRefresh)
	}
	now := c.clock()
	exp := now.Add(domain.AccessLifetime)
	if refreshExp := refresh.ExpiresAt.UTC().Truncate(time.Second); refreshExp.Before(exp) {
		exp = refreshExp
	}
	if !now.Before(exp) {
		return "", time.Time{}, ErrExpired
	}
	token, _, err := c.issue(refresh.Claims, domain.TokenClassAccess, now, exp, refresh.ID)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// DecodeUnsafe parses a token's claims without checking the signature or expiry.
// For inspection only; never use the result for authorization.
func (c *TokenCodec) DecodeUnsafe(tokenString string) (domain.Token, error) {
	raw, err := decodeRaw(tokenString)
	if err != nil {
		return domain.Token{}, err
	}
	if strings.Contains(raw.signature, ".") {
		return domain.Token{}, fmt.Errorf("%w: token contains an invalid number of segments", ErrMalformedToken)
	}
	return raw.token()
}

type tokenHeader struct {
	Alg string `json:"alg"`
}

// rawToken is a compact JWT with its header and payload decoded. The signature segment stays
// encoded and is everything after the second dot.
type rawToken struct {
	header        tokenHeader
	claims        tokenClaims
	signingString string
	signature     string
}

var segmentParser = jwt.NewParser(jwt.WithStrictDecoding())

func decodeRaw(tokenString string) (rawToken, error) {
	parts := strings.SplitN(tokenString, ".", 3)
	if len(parts) != 3 {
		return rawToken{}, fmt.Errorf("%w: token contains an invalid number of segments", ErrMalformedToken)
	}
	var raw rawToken
	hb, err := segmentParser.DecodeSegment(parts[0])
	if err != nil {
		return rawToken{}, fmt.Errorf("%w: header: %v", ErrMalformedToken, err)
	}
	if err := json.Unmarshal(hb, &raw.header); err != nil {
		return rawToken{}, fmt.Errorf("%w: header: %v", ErrMalformedToken, err)
	}
	pb, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return rawToken{}, fmt.Errorf("%w: payload: %v", ErrMalformedToken, err)
	}
	if err := json.Unmarshal(pb, &raw.claims); err != nil {
		return rawToken{}, fmt.Errorf("%w: payload: %v", ErrMalformedToken, err)
	}
	raw.signingString = parts[0] + "." + parts[1]
	raw.signature = parts[2]
	return raw, nil
}

func (r rawToken) token() (domain.Token, error) {
	tc := r.claims
	if tc.Subject == "" {
		return domain.Token{}, fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}
	if tc.ExpiresAt == nil || tc.IssuedAt == nil {
		return domain.Token{}, fmt.Errorf("%w: missing timestamps", ErrMalformedToken)
	}
	class := domain.TokenClass(tc.TokenType)
	if !class.Valid() {
		return domain.Token{}, fmt.Errorf("%w: token class %q", ErrMalformedToken, tc.TokenType)
	}
	return domain.Token{
		Claims: domain.Claims{
			Subject:       tc.Subject,
			Email:         tc.Email,
			DisplayName:   tc.DisplayName,
			EmailVerified: tc.EmailVerified,
			Role:          tc.Role,
			IssuedAt:      tc.IssuedAt.Time.UTC(),
			ExpiresAt:     tc.ExpiresAt.Time.UTC(),
		},
		Class:     class,
		ID:        tc.ID,
		RefreshID: tc.RefreshID,
		Issuer:    tc.Issuer,
	}, nil
}

func (c *TokenCodec) issue(claims domain.Claims, class domain.TokenClass, now, exp time.Time, refreshID string) (string, string, error) {
	if claims.Subject == "" {
		return "", "", ErrMissingSubject
	}
	jti := uuid.NewString()
	tc := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   claims.Subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email:         claims.Email,
		DisplayName:   claims.DisplayName,
		EmailVerified: claims.EmailVerified,
		Role:          claims.RoleOrDefault(),
		TokenType:     string(class),
		RefreshID:     refreshID,
	}
	signed, err := jwt.NewWithClaims(c.method, tc).SignedString(c.signKey)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

// clock returns the current time at second granularity, matching the token's numeric dates.
func (c *TokenCodec) clock() time.Time {
	return c.now().UTC().Truncate(time.Second)
}
