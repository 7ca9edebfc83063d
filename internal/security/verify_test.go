package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"coliving-platform/backend/internal/session/domain"
)

func mutate(b byte) byte {
	if b == 'A' {
		return 'B'
	}
	return 'A'
}

func TestVerify_AnySignatureMutationFails(t *testing.T) {
	c := NewTestCodec(NewFakeClock(t0).Now)
	tok, err := c.Issue(testClaims(), domain.TokenClassAccess)
	if err != nil {
		t.Fatal(err)
	}
	sigStart := strings.LastIndex(tok, ".") + 1
	for i := sigStart; i < len(tok); i++ {
		b := []byte(tok)
		b[i] = mutate(b[i])
		_, err := c.Verify(string(b), domain.TokenClassAccess)
		if !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("mutation at %d: want ErrInvalidSignature, got %v", i, err)
		}
	}
}

func TestVerify_LastSignatureCharacter(t *testing.T) {
	c := NewTestCodec(NewFakeClock(t0).Now)
	tok, err := c.Issue(testClaims(), domain.TokenClassAccess)
	if err != nil {
		t.Fatal(err)
	}
	last := tok[len(tok)-1]
	// Covers padding bits, characters outside the alphabet and an extra segment separator.
	for _, r := range []byte{'A', 'B', 'c', '-', '_', '=', '.', '+', '/'} {
		if r == last {
			continue
		}
		forged := tok[:len(tok)-1] + string(r)
		if _, err := c.Verify(forged, domain.TokenClassAccess); !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("last char %q: want ErrInvalidSignature, got %v", r, err)
		}
	}
	if _, err := c.Verify(tok+".", domain.TokenClassAccess); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("trailing dot: want ErrInvalidSignature, got %v", err)
	}
	if _, err := c.Verify(tok[:len(tok)-1], domain.TokenClassAccess); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("truncated signature: want ErrInvalidSignature, got %v", err)
	}
}

func TestDecodeUnsafe_ExtraSegmentIsMalformed(t *testing.T) {
	c := NewTestCodec(NewFakeClock(t0).Now)
	tok, _ := c.Issue(testClaims(), domain.TokenClassAccess)
	if _, err := c.DecodeUnsafe(tok + ".x"); !errors.Is(err, ErrMalformedToken) {
		t.Errorf("want ErrMalformedToken, got %v", err)
	}
	if _, err := c.DecodeUnsafe(tok[:len(tok)-1] + "="); err != nil {
		t.Errorf("signature bytes are not inspected: %v", err)
	}
}

func TestVerify_PayloadMutationFails(t *testing.T) {
	c := NewTestCodec(NewFakeClock(t0).Now)
	tok, _ := c.Issue(testClaims(), domain.TokenClassAccess)
	parts := strings.Split(tok, ".")
	for i := 0; i < len(parts[1]); i += 7 {
		p := []byte(parts[1])
		p[i] = mutate(p[i])
		forged := parts[0] + "." + string(p) + "." + parts[2]
		if c.Valid(forged, domain.TokenClassAccess) {
			t.Fatalf("payload mutation at %d accepted", i)
		}
	}
}

func TestVerify_Expiry(t *testing.T) {
	clock := NewFakeClock(t0)
	c := NewTestCodec(clock.Now)
	tok, _ := c.Issue(testClaims(), domain.TokenClassAccess)

	clock.Advance(15*time.Minute - time.Second)
	if _, err := c.Verify(tok, domain.TokenClassAccess); err != nil {
		t.Fatalf("one second before expiry: %v", err)
	}
	clock.Advance(time.Second)
	if _, err := c.Verify(tok, domain.TokenClassAccess); !errors.Is(err, ErrExpired) {
		t.Fatalf("at expiry: want ErrExpired, got %v", err)
	}
	// Sub-second progress does not matter: exp is compared at second granularity.
	clock.Advance(-time.Second + 999*time.Millisecond)
	if _, err := c.Verify(tok, domain.TokenClassAccess); err != nil {
		t.Fatalf("within the last second: %v", err)
	}
}

func TestVerify_ClassMismatch(t *testing.T) {
	c := NewTestCodec(nil)
	pair, _ := c.IssuePair(testClaims())
	if _, err := c.Verify(pair.AccessToken, domain.TokenClassRefresh); !errors.Is(err, ErrMalformedToken) {
		t.Errorf("access as refresh: got %v", err)
	}
	if _, err := c.Verify(pair.RefreshToken, domain.TokenClassAccess); !errors.Is(err, ErrMalformedToken) {
		t.Errorf("refresh as access: got %v", err)
	}
}

func TestVerify_ForeignKeyAndIssuer(t *testing.T) {
	c := NewTestCodec(nil)
	foreign, _ := NewHMACCodec([]byte("another-secret-that-is-long-enough"), "test-issuer")
	tok, _ := foreign.Issue(testClaims(), domain.TokenClassAccess)
	if _, err := c.Verify(tok, domain.TokenClassAccess); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("foreign key: want ErrInvalidSignature, got %v", err)
	}

	otherIssuer, _ := NewHMACCodec([]byte(TestSecret), "someone-else")
	tok, _ = otherIssuer.Issue(testClaims(), domain.TokenClassAccess)
	if _, err := c.Verify(tok, domain.TokenClassAccess); !errors.Is(err, ErrMalformedToken) {
		t.Errorf("wrong issuer: want ErrMalformedToken, got %v", err)
	}
}

func TestVerify_RejectsAlgNone(t *testing.T) {
	c := NewTestCodec(nil)
	now := time.Now()
	tc := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "uid-1",
			Issuer:    "test-issuer",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		TokenType: string(domain.TokenClassAccess),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, tc).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Verify(tok, domain.TokenClassAccess); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("alg none: want ErrInvalidSignature, got %v", err)
	}
}

func TestVerify_Garbage(t *testing.T) {
	c := NewTestCodec(nil)
	for _, in := range []string{"", "not-a-token", "x.y"} {
		if _, err := c.Verify(in, domain.TokenClassAccess); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("Verify(%q): want ErrMalformedToken, got %v", in, err)
		}
		if c.Valid(in, domain.TokenClassAccess) {
			t.Errorf("Valid(%q) = true", in)
		}
	}
}

func TestKind(t *testing.T) {
	cases := map[error]string{
		nil:                 "ok",
		ErrExpired:          "expired",
		ErrInvalidSignature: "invalid_signature",
		ErrMalformedToken:   "malformed",
		errors.New("x"):     "error",
	}
	for err, want := range cases {
		if got := Kind(err); got != want {
			t.Errorf("Kind(%v) = %q, want %q", err, got, want)
		}
	}
}
