package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"coliving-platform/backend/internal/session/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testClaims() domain.Claims {
	return domain.Claims{
		Subject:       "uid-1",
		Email:         "ana@example.com",
		DisplayName:   "Ana",
		EmailVerified: true,
		Role:          "owner",
	}
}

func TestIssue_RoundTrip(t *testing.T) {
	clock := NewFakeClock(t0)
	c := NewTestCodec(clock.Now)

	for _, class := range []domain.TokenClass{domain.TokenClassAccess, domain.TokenClassRefresh} {
		tok, err := c.Issue(testClaims(), class)
		if err != nil {
			t.Fatalf("Issue(%s): %v", class, err)
		}
		got, err := c.Verify(tok, class)
		if err != nil {
			t.Fatalf("Verify(%s): %v", class, err)
		}
		if got.Subject != "uid-1" || got.Email != "ana@example.com" || got.Role != "owner" || !got.EmailVerified {
			t.Errorf("claims mismatch: %+v", got.Claims)
		}
		if !got.IssuedAt.Equal(t0) {
			t.Errorf("IssuedAt = %v, want %v", got.IssuedAt, t0)
		}
		if want := t0.Add(class.Lifetime()); !got.ExpiresAt.Equal(want) {
			t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, want)
		}
		if got.ID == "" || got.Issuer != "test-issuer" {
			t.Errorf("id=%q issuer=%q", got.ID, got.Issuer)
		}
	}
}

func TestIssue_DefaultsRoleAndRejectsBadInput(t *testing.T) {
	c := NewTestCodec(nil)
	claims := testClaims()
	claims.Role = ""
	tok, err := c.Issue(claims, domain.TokenClassAccess)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	got, err := c.Verify(tok, domain.TokenClassAccess)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.Role != domain.DefaultRole {
		t.Errorf("Role = %q, want %q", got.Role, domain.DefaultRole)
	}

	if _, err := c.Issue(domain.Claims{Email: "x@example.com"}, domain.TokenClassAccess); !errors.Is(err, ErrMissingSubject) {
		t.Errorf("missing subject: got %v", err)
	}
	if _, err := c.Issue(testClaims(), domain.TokenClass("id")); !errors.Is(err, ErrUnknownTokenClass) {
		t.Errorf("unknown class: got %v", err)
	}
}

func TestIssuePair_BindsAccessToRefresh(t *testing.T) {
	c := NewTestCodec(NewFakeClock(t0).Now)
	pair, err := c.IssuePair(testClaims())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	access, err := c.Verify(pair.AccessToken, domain.TokenClassAccess)
	if err != nil {
		t.Fatalf("Verify access: %v", err)
	}
	refresh, err := c.Verify(pair.RefreshToken, domain.TokenClassRefresh)
	if err != nil {
		t.Fatalf("Verify refresh: %v", err)
	}
	if access.RefreshID != refresh.ID {
		t.Errorf("access rid = %q, refresh jti = %q", access.RefreshID, refresh.ID)
	}
	if !pair.AccessExpiresAt.Equal(t0.Add(15*time.Minute)) || !pair.RefreshExpiresAt.Equal(t0.Add(7*24*time.Hour)) {
		t.Errorf("expiries %v %v", pair.AccessExpiresAt, pair.RefreshExpiresAt)
	}
}

func TestIssueFromRefresh(t *testing.T) {
	clock := NewFakeClock(t0)
	c := NewTestCodec(clock.Now)
	pair, err := c.IssuePair(testClaims())
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Hour)
	refresh, err := c.Verify(pair.RefreshToken, domain.TokenClassRefresh)
	if err != nil {
		t.Fatalf("Verify refresh: %v", err)
	}
	access, exp, err := c.IssueFromRefresh(refresh)
	if err != nil {
		t.Fatalf("IssueFromRefresh: %v", err)
	}
	if want := t0.Add(time.Hour + 15*time.Minute); !exp.Equal(want) {
		t.Errorf("exp = %v, want %v", exp, want)
	}
	got, err := c.Verify(access, domain.TokenClassAccess)
	if err != nil {
		t.Fatalf("Verify new access: %v", err)
	}
	if got.RefreshID != refresh.ID || got.Subject != refresh.Subject {
		t.Errorf("new access %+v not bound to refresh %q", got, refresh.ID)
	}
}

func TestIssueFromRefresh_ClampsToRefreshExpiry(t *testing.T) {
	clock := NewFakeClock(t0)
	c := NewTestCodec(clock.Now)
	pair, err := c.IssuePair(testClaims())
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(7*24*time.Hour - 5*time.Minute)
	refresh, err := c.Verify(pair.RefreshToken, domain.TokenClassRefresh)
	if err != nil {
		t.Fatalf("Verify refresh: %v", err)
	}
	_, exp, err := c.IssueFromRefresh(refresh)
	if err != nil {
		t.Fatalf("IssueFromRefresh: %v", err)
	}
	if !exp.Equal(pair.RefreshExpiresAt) {
		t.Errorf("exp = %v, want clamp to %v", exp, pair.RefreshExpiresAt)
	}

	clock.Advance(5 * time.Minute)
	if _, _, err := c.IssueFromRefresh(refresh); !errors.Is(err, ErrExpired) {
		t.Errorf("IssueFromRefresh at refresh expiry: want ErrExpired, got %v", err)
	}
}

func TestIssueFromRefresh_RejectsAccessToken(t *testing.T) {
	c := NewTestCodec(nil)
	tok, _ := c.Issue(testClaims(), domain.TokenClassAccess)
	access, err := c.Verify(tok, domain.TokenClassAccess)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.IssueFromRefresh(access); !errors.Is(err, ErrMalformedToken) {
		t.Errorf("want ErrMalformedToken, got %v", err)
	}
}

func TestDecodeUnsafe(t *testing.T) {
	clock := NewFakeClock(t0)
	c := NewTestCodec(clock.Now)
	tok, _ := c.Issue(testClaims(), domain.TokenClassAccess)
	clock.Advance(time.Hour)

	got, err := c.DecodeUnsafe(tok)
	if err != nil {
		t.Fatalf("DecodeUnsafe of expired token: %v", err)
	}
	if got.Subject != "uid-1" || got.Class != domain.TokenClassAccess {
		t.Errorf("got %+v", got)
	}

	// Signature is not consulted.
	other, _ := NewHMACCodec([]byte("another-secret-that-is-long-enough"), "test-issuer")
	if _, err := other.DecodeUnsafe(tok); err != nil {
		t.Errorf("DecodeUnsafe with foreign codec: %v", err)
	}

	for _, in := range []string{"", "abc", "a.b.c", strings.Repeat("x", 40)} {
		if _, err := c.DecodeUnsafe(in); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("DecodeUnsafe(%q): want ErrMalformedToken, got %v", in, err)
		}
	}
}

func TestKeyPairCodec_RoundTrip(t *testing.T) {
	c, err := NewTestKeyPairCodec()
	if err != nil {
		t.Fatal(err)
	}
	pair, err := c.IssuePair(testClaims())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := c.Verify(pair.AccessToken, domain.TokenClassAccess); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	hmac := NewTestCodec(nil)
	if _, err := hmac.Verify(pair.AccessToken, domain.TokenClassAccess); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("RS256 token under HS256 codec: want ErrInvalidSignature, got %v", err)
	}
}
