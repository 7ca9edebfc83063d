package security

import (
	"errors"
	"fmt"

	"coliving-platform/backend/internal/session/domain"
)

// Verification failures. Callers that only need allow/deny use Valid; the kind is for logging.
var (
	ErrMalformedToken   = errors.New("token: malformed")
	ErrInvalidSignature = errors.New("token: invalid signature")
	ErrExpired          = errors.New("token: expired")
)

// Verify is the sole authority on whether a token is currently valid for authorization.
// It checks structure, signature (algorithm pinned to the codec's), token class, issuer, and expiry:
// a token is valid iff the signature verifies and now (seconds) < exp (seconds).
func (c *TokenCodec) Verify(tokenString string, class domain.TokenClass) (domain.Token, error) {
	raw, err := decodeRaw(tokenString)
	if err != nil {
		return domain.Token{}, err
	}
	tok, err := raw.token()
	if err != nil {
		return domain.Token{}, err
	}
	// Header and payload decoded: every failure from here to the signature check is a signature failure.
	if raw.header.Alg != c.method.Alg() {
		return domain.Token{}, fmt.Errorf("%w: signing method %q", ErrInvalidSignature, raw.header.Alg)
	}
	sig, err := segmentParser.DecodeSegment(raw.signature)
	if err != nil {
		return domain.Token{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if err := c.method.Verify(raw.signingString, sig, c.verifyKey); err != nil {
		return domain.Token{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if tok.Class != class {
		return domain.Token{}, fmt.Errorf("%w: token class %q, want %q", ErrMalformedToken, tok.Class, class)
	}
	if c.issuer != "" && tok.Issuer != c.issuer {
		return domain.Token{}, fmt.Errorf("%w: unexpected issuer %q", ErrMalformedToken, tok.Issuer)
	}
	if c.now().Unix() >= tok.ExpiresAt.Unix() {
		return domain.Token{}, ErrExpired
	}
	return tok, nil
}

// Valid reports whether token verifies as the given class.
func (c *TokenCodec) Valid(tokenString string, class domain.TokenClass) bool {
	_, err := c.Verify(tokenString, class)
	return err == nil
}

// Kind returns a short label for a verification error, for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	default:
		return "error"
	}
}
