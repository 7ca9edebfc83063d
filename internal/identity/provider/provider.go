// Package provider adapts external and local identity backends to one credential-check interface.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coliving-platform/backend/internal/identity/domain"
)

// IdentityProvider checks an email/password pair and returns the provider's verdict.
// Implementations return domain.ErrInvalidCredentials for a rejected pair and
// domain.ErrProviderUnavailable for transport or upstream failures.
type IdentityProvider interface {
	Authenticate(ctx context.Context, email, password string) (domain.Verdict, error)
	Kind() domain.ProviderKind
}

// Registrar is implemented by providers that can create accounts.
type Registrar interface {
	Register(ctx context.Context, reg domain.Registration) (domain.Verdict, error)
}

// Verifier is implemented by providers that can (re)send the email verification message. The
// password proves the caller owns the account; a verified account yields domain.ErrAlreadyVerified.
type Verifier interface {
	ResendVerification(ctx context.Context, email, password string) error
}

// DefaultTimeout bounds a single provider call when none is configured.
const DefaultTimeout = 5 * time.Second

// Bounded wraps a provider so every call returns within timeout, even when the wrapped
// provider ignores context cancellation. A call that runs out of time fails with
// domain.ErrProviderUnavailable.
type Bounded struct {
	inner   IdentityProvider
	timeout time.Duration
}

// WithTimeout returns p bounded by timeout (DefaultTimeout when <= 0).
func WithTimeout(p IdentityProvider, timeout time.Duration) *Bounded {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bounded{inner: p, timeout: timeout}
}

func (b *Bounded) Kind() domain.ProviderKind { return b.inner.Kind() }

// Unwrap returns the wrapped provider.
func (b *Bounded) Unwrap() IdentityProvider { return b.inner }

func (b *Bounded) Authenticate(ctx context.Context, email, password string) (domain.Verdict, error) {
	return bounded(ctx, b.timeout, func(ctx context.Context) (domain.Verdict, error) {
		return b.inner.Authenticate(ctx, email, password)
	})
}

// Register forwards to the wrapped provider when it is a Registrar.
func (b *Bounded) Register(ctx context.Context, reg domain.Registration) (domain.Verdict, error) {
	r, ok := b.inner.(Registrar)
	if !ok {
		return domain.Verdict{}, domain.ErrRegistrationUnsupported
	}
	return bounded(ctx, b.timeout, func(ctx context.Context) (domain.Verdict, error) {
		return r.Register(ctx, reg)
	})
}

// SupportsRegistration reports whether Register can succeed.
func (b *Bounded) SupportsRegistration() bool {
	_, ok := b.inner.(Registrar)
	return ok
}

// ResendVerification forwards to the wrapped provider when it is a Verifier.
func (b *Bounded) ResendVerification(ctx context.Context, email, password string) error {
	v, ok := b.inner.(Verifier)
	if !ok {
		return domain.ErrVerificationUnsupported
	}
	_, err := bounded(ctx, b.timeout, func(ctx context.Context) (domain.Verdict, error) {
		return domain.Verdict{}, v.ResendVerification(ctx, email, password)
	})
	return err
}

type result struct {
	v   domain.Verdict
	err error
}

func bounded(ctx context.Context, timeout time.Duration, call func(context.Context) (domain.Verdict, error)) (domain.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		v, err := call(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return domain.Verdict{}, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, r.err)
		}
		return r.v, r.err
	case <-ctx.Done():
		return domain.Verdict{}, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, ctx.Err())
	}
}
