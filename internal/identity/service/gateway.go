// Package service implements the auth gateway: login, refresh and logout over a session store.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"coliving-platform/backend/internal/audit"
	auditdomain "coliving-platform/backend/internal/audit/domain"
	"coliving-platform/backend/internal/identity/domain"
	"coliving-platform/backend/internal/identity/provider"
	"coliving-platform/backend/internal/metrics"
	"coliving-platform/backend/internal/security"
	"coliving-platform/backend/internal/session/cookiestore"
	sessiondomain "coliving-platform/backend/internal/session/domain"
	"coliving-platform/backend/internal/session/revocation"
	userdomain "coliving-platform/backend/internal/user/domain"
	userrepo "coliving-platform/backend/internal/user/repository"
)

// ErrSessionInvalid is returned when the presented session tokens cannot be used. The wrapped
// verifier error (malformed, invalid signature, expired) is for logs only.
var ErrSessionInvalid = errors.New("session invalid, please sign in again")

// ErrUnknownAction is returned by Dispatch for an action other than login, refresh or logout.
var ErrUnknownAction = errors.New("unknown session action")

// Action names a session-affecting gateway action.
type Action string

const (
	ActionLogin   Action = "login"
	ActionRefresh Action = "refresh"
	ActionLogout  Action = "logout"
)

// SessionStore is where the token pair lives for one request (cookies in production).
type SessionStore interface {
	Read() (access, refresh string)
	Write(access, refresh string) error
	WriteAccess(access string) error
	Clear()
}

// Request is one dispatched action. Email and Password are only read for login.
type Request struct {
	Action   Action
	Email    string
	Password string
}

// Result reports the session state after an action and, when authenticated, who is signed in.
type Result struct {
	State           sessiondomain.State
	Claims          sessiondomain.Claims
	Profile         *userdomain.Profile
	AccessExpiresAt time.Time
}

// Gateway orchestrates the identity provider, token codec and session store.
type Gateway struct {
	provider    *provider.Bounded
	codec       *security.TokenCodec
	directory   userrepo.Repository
	revocations revocation.List
	auditor     audit.Recorder
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithDirectory sets the profile directory used for display data.
func WithDirectory(r userrepo.Repository) Option { return func(g *Gateway) { g.directory = r } }

// WithRevocations sets the list consulted on refresh and written on logout.
func WithRevocations(l revocation.List) Option { return func(g *Gateway) { g.revocations = l } }

// WithAuditor sets the audit recorder.
func WithAuditor(r audit.Recorder) Option { return func(g *Gateway) { g.auditor = r } }

func WithMetrics(m *metrics.Metrics) Option { return func(g *Gateway) { g.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(g *Gateway) { g.logger = l } }

// WithClock overrides time.Now for last-login timestamps.
func WithClock(now func() time.Time) Option { return func(g *Gateway) { g.now = now } }

// NewGateway returns a Gateway. A provider that is not already bounded gets provider.DefaultTimeout.
func NewGateway(p provider.IdentityProvider, codec *security.TokenCodec, opts ...Option) *Gateway {
	b, ok := p.(*provider.Bounded)
	if !ok {
		b = provider.WithTimeout(p, provider.DefaultTimeout)
	}
	g := &Gateway{
		provider:    b,
		codec:       codec,
		revocations: revocation.Nop{},
		auditor:     audit.Nop{},
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.revocations == nil {
		g.revocations = revocation.Nop{}
	}
	if g.auditor == nil {
		g.auditor = audit.Nop{}
	}
	return g
}

// Dispatch runs one action against store.
func (g *Gateway) Dispatch(ctx context.Context, store SessionStore, req Request) (*Result, error) {
	switch req.Action {
	case ActionLogin:
		return g.Login(ctx, store, req.Email, req.Password)
	case ActionRefresh:
		return g.Refresh(ctx, store)
	case ActionLogout:
		return g.Logout(ctx, store), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
}

// authenticate is the Authenticating state: the provider call in flight, before any token exists.
func (g *Gateway) authenticate(ctx context.Context, email, password string) (domain.Verdict, error) {
	leave := g.metrics.Enter(string(sessiondomain.StateAuthenticating))
	defer leave()
	g.logger.Debug("session state", zap.String("state", string(sessiondomain.StateAuthenticating)),
		zap.String("provider", string(g.provider.Kind())))
	return g.provider.Authenticate(ctx, email, password)
}

// Login checks credentials with the provider, issues a token pair and writes both cookies, in
// that order. No cookies survive a failed login.
func (g *Gateway) Login(ctx context.Context, store SessionStore, email, password string) (*Result, error) {
	email = domain.NormalizeEmail(email)
	anonymous := &Result{State: sessiondomain.StateAnonymous}
	fail := func(subject string, err error) (*Result, error) {
		g.record(ctx, auditdomain.ActionLogin, subject, "", err)
		g.metrics.Action(string(ActionLogin), reason(err))
		return anonymous, err
	}

	if email == "" || password == "" {
		return fail("", domain.ErrInvalidCredentials)
	}
	verdict, err := g.authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) {
			g.logger.Warn("identity provider unavailable",
				zap.String("provider", string(g.provider.Kind())), zap.Error(err))
		}
		return fail("", err)
	}
	if !verdict.EmailVerified {
		return fail(verdict.Subject, domain.ErrEmailNotVerified)
	}

	claims := sessiondomain.Claims{
		Subject:       verdict.Subject,
		Email:         verdict.Email,
		DisplayName:   verdict.DisplayName,
		EmailVerified: true,
		Role:          verdict.Role,
	}
	pair, err := g.codec.IssuePair(claims)
	if err != nil {
		return fail(verdict.Subject, fmt.Errorf("issue tokens: %w", err))
	}
	if err := store.Write(pair.AccessToken, pair.RefreshToken); err != nil {
		store.Clear()
		if !errors.Is(err, cookiestore.ErrStoreWrite) {
			err = fmt.Errorf("%w: %v", cookiestore.ErrStoreWrite, err)
		}
		g.logger.Error("session cookie write failed", zap.String("subject", verdict.Subject), zap.Error(err))
		return fail(verdict.Subject, err)
	}

	claims.Role = claims.RoleOrDefault()
	claims.IssuedAt = pair.AccessExpiresAt.Add(-sessiondomain.AccessLifetime)
	claims.ExpiresAt = pair.AccessExpiresAt
	profile := g.ensureProfile(ctx, verdict)
	g.touchLastLogin(ctx, verdict.Subject)

	g.auditor.Record(ctx, auditdomain.Event{
		Subject: verdict.Subject,
		Action:  auditdomain.ActionLogin,
		Outcome: auditdomain.OutcomeSuccess,
		TokenFP: security.Fingerprint(pair.RefreshToken),
	})
	g.metrics.Action(string(ActionLogin), "ok")
	return &Result{
		State:           sessiondomain.StateAuthenticated,
		Claims:          claims,
		Profile:         profile,
		AccessExpiresAt: pair.AccessExpiresAt,
	}, nil
}

// Refresh mints a new access token from the refresh cookie and overwrites the access cookie.
// The refresh token is reused unchanged. On failure the state is RefreshFailed and the caller
// must treat the session as ended; cookies are left as they are.
func (g *Gateway) Refresh(ctx context.Context, store SessionStore) (*Result, error) {
	_, refresh := store.Read()
	failed := &Result{State: sessiondomain.StateRefreshFailed}
	fail := func(subject string, err error) (*Result, error) {
		g.record(ctx, auditdomain.ActionRefresh, subject, security.Fingerprint(refresh), err)
		g.metrics.Action(string(ActionRefresh), reason(err))
		return failed, err
	}

	tok, err := g.verifyRefresh(ctx, refresh)
	if err != nil {
		return fail("", err)
	}
	access, exp, err := g.codec.IssueFromRefresh(tok)
	if err != nil {
		return fail(tok.Subject, fmt.Errorf("%w: %w", ErrSessionInvalid, err))
	}
	if err := store.WriteAccess(access); err != nil {
		if !errors.Is(err, cookiestore.ErrStoreWrite) {
			err = fmt.Errorf("%w: %v", cookiestore.ErrStoreWrite, err)
		}
		return fail(tok.Subject, err)
	}

	claims := tok.Claims
	claims.Role = claims.RoleOrDefault()
	claims.ExpiresAt = exp
	if t, err := g.codec.DecodeUnsafe(access); err == nil {
		claims.IssuedAt = t.IssuedAt
	}
	g.auditor.Record(ctx, auditdomain.Event{
		Subject: tok.Subject,
		Action:  auditdomain.ActionRefresh,
		Outcome: auditdomain.OutcomeSuccess,
		TokenFP: security.Fingerprint(refresh),
	})
	g.metrics.Action(string(ActionRefresh), "ok")
	return &Result{
		State:           sessiondomain.StateAuthenticated,
		Claims:          claims,
		Profile:         g.profile(ctx, tok.Subject),
		AccessExpiresAt: exp,
	}, nil
}

// Logout revokes the session's refresh token id when it can be verified, then clears both
// cookies. It always succeeds.
func (g *Gateway) Logout(ctx context.Context, store SessionStore) *Result {
	access, refresh := store.Read()

	var subject string
	ids := map[string]time.Time{}
	if tok, err := g.codec.Verify(refresh, sessiondomain.TokenClassRefresh); err == nil {
		subject = tok.Subject
		ids[tok.ID] = tok.ExpiresAt
	}
	// An access token names its refresh token; revoking by rid covers a missing refresh cookie.
	if tok, err := g.codec.Verify(access, sessiondomain.TokenClassAccess); err == nil && tok.RefreshID != "" {
		subject = tok.Subject
		if _, ok := ids[tok.RefreshID]; !ok {
			ids[tok.RefreshID] = tok.IssuedAt.Add(sessiondomain.RefreshLifetime)
		}
	}
	var errs error
	for id, until := range ids {
		errs = multierr.Append(errs, g.revocations.Revoke(ctx, id, until))
	}
	if errs != nil {
		g.logger.Warn("logout: revocation failed", zap.String("subject", subject), zap.Error(errs))
	}

	store.Clear()
	g.auditor.Record(ctx, auditdomain.Event{
		Subject: subject,
		Action:  auditdomain.ActionLogout,
		Outcome: auditdomain.OutcomeSuccess,
		TokenFP: security.Fingerprint(refresh),
	})
	g.metrics.Action(string(ActionLogout), "ok")
	return &Result{State: sessiondomain.StateAnonymous}
}

// Current verifies the access cookie and returns the signed-in identity.
func (g *Gateway) Current(ctx context.Context, store SessionStore) (*Result, error) {
	access, _ := store.Read()
	tok, err := g.VerifyAccess(ctx, access)
	if err != nil {
		return &Result{State: sessiondomain.StateAnonymous}, err
	}
	claims := tok.Claims
	claims.Role = claims.RoleOrDefault()
	return &Result{
		State:           sessiondomain.StateAuthenticated,
		Claims:          claims,
		Profile:         g.profile(ctx, tok.Subject),
		AccessExpiresAt: tok.ExpiresAt,
	}, nil
}

// VerifyAccess verifies an access token and checks that its refresh token was not revoked.
func (g *Gateway) VerifyAccess(ctx context.Context, access string) (sessiondomain.Token, error) {
	if access == "" {
		g.metrics.Verification(string(sessiondomain.TokenClassAccess), "missing")
		return sessiondomain.Token{}, fmt.Errorf("%w: no access token", ErrSessionInvalid)
	}
	tok, err := g.codec.Verify(access, sessiondomain.TokenClassAccess)
	g.metrics.Verification(string(sessiondomain.TokenClassAccess), security.Kind(err))
	if err != nil {
		return sessiondomain.Token{}, fmt.Errorf("%w: %w", ErrSessionInvalid, err)
	}
	if g.revoked(ctx, tok.RefreshID) {
		return sessiondomain.Token{}, fmt.Errorf("%w: session revoked", ErrSessionInvalid)
	}
	return tok, nil
}

// VerifyRefresh verifies a refresh token without issuing anything. The route guard uses it for
// its one-shot fallback.
func (g *Gateway) VerifyRefresh(ctx context.Context, refresh string) (sessiondomain.Token, error) {
	return g.verifyRefresh(ctx, refresh)
}

func (g *Gateway) verifyRefresh(ctx context.Context, refresh string) (sessiondomain.Token, error) {
	if refresh == "" {
		g.metrics.Verification(string(sessiondomain.TokenClassRefresh), "missing")
		return sessiondomain.Token{}, fmt.Errorf("%w: no refresh token", ErrSessionInvalid)
	}
	tok, err := g.codec.Verify(refresh, sessiondomain.TokenClassRefresh)
	g.metrics.Verification(string(sessiondomain.TokenClassRefresh), security.Kind(err))
	if err != nil {
		return sessiondomain.Token{}, fmt.Errorf("%w: %w", ErrSessionInvalid, err)
	}
	if g.revoked(ctx, tok.ID) {
		return sessiondomain.Token{}, fmt.Errorf("%w: session revoked", ErrSessionInvalid)
	}
	return tok, nil
}

// revoked fails open: a revocation backend outage must not sign everyone out.
func (g *Gateway) revoked(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	ok, err := g.revocations.IsRevoked(ctx, id)
	if err != nil {
		g.logger.Warn("revocation lookup failed", zap.String("token_id", id), zap.Error(err))
		return false
	}
	return ok
}

// Register creates an account with the provider and its directory profile. It does not sign in.
func (g *Gateway) Register(ctx context.Context, reg domain.Registration) (*userdomain.Profile, error) {
	reg.Email = domain.NormalizeEmail(reg.Email)
	reg.FullName = strings.TrimSpace(reg.FullName)
	reg.BusinessName = strings.TrimSpace(reg.BusinessName)
	if err := checkRegistration(reg); err != nil {
		g.metrics.Action(auditdomain.ActionRegister, reason(err))
		return nil, err
	}
	if !g.provider.SupportsRegistration() {
		g.metrics.Action(auditdomain.ActionRegister, reason(domain.ErrRegistrationUnsupported))
		return nil, domain.ErrRegistrationUnsupported
	}
	verdict, err := g.provider.Register(ctx, reg)
	if err != nil {
		g.record(ctx, auditdomain.ActionRegister, "", "", err)
		g.metrics.Action(auditdomain.ActionRegister, reason(err))
		return nil, err
	}

	p := &userdomain.Profile{
		ID:           verdict.Subject,
		Email:        verdict.Email,
		FullName:     reg.FullName,
		BusinessName: reg.BusinessName,
		UserType:     userdomain.UserType(reg.UserType),
	}
	if p.UserType == "" {
		p.UserType = userdomain.UserTypeUser
	}
	if g.directory != nil {
		if err := g.directory.Upsert(ctx, p); err != nil {
			g.logger.Warn("register: profile not stored", zap.String("subject", verdict.Subject), zap.Error(err))
		}
	}

	g.auditor.Record(ctx, auditdomain.Event{
		Subject: verdict.Subject,
		Action:  auditdomain.ActionRegister,
		Outcome: auditdomain.OutcomeSuccess,
	})
	g.metrics.Action(auditdomain.ActionRegister, "ok")
	return p, nil
}

// ResendVerification asks the provider to send the verification email again. It needs the
// account's password so the endpoint cannot be used to mail arbitrary addresses.
func (g *Gateway) ResendVerification(ctx context.Context, email, password string) error {
	email = domain.NormalizeEmail(email)
	err := domain.ErrInvalidCredentials
	if email != "" && password != "" {
		err = g.provider.ResendVerification(ctx, email, password)
	}
	if errors.Is(err, domain.ErrProviderUnavailable) {
		g.logger.Warn("verification resend: identity provider unavailable",
			zap.String("provider", string(g.provider.Kind())), zap.Error(err))
	}
	if err != nil {
		g.record(ctx, auditdomain.ActionVerifyResend, "", "", err)
	} else {
		g.auditor.Record(ctx, auditdomain.Event{Action: auditdomain.ActionVerifyResend, Outcome: auditdomain.OutcomeSuccess})
	}
	g.metrics.Action(auditdomain.ActionVerifyResend, reason(err))
	return err
}

// checkRegistration rejects sign-ups the directory could not store. Admins are never self-registered.
func checkRegistration(reg domain.Registration) error {
	switch userdomain.UserType(reg.UserType) {
	case "", userdomain.UserTypeUser:
		return nil
	case userdomain.UserTypeOwner:
		if reg.BusinessName == "" {
			return fmt.Errorf("%w: business name is required for owners", domain.ErrInvalidRegistration)
		}
		return nil
	default:
		return fmt.Errorf("%w: user type %q", domain.ErrInvalidRegistration, reg.UserType)
	}
}

// SupportsRegistration reports whether the configured provider can create accounts.
func (g *Gateway) SupportsRegistration() bool { return g.provider.SupportsRegistration() }

// ensureProfile returns the subject's profile, creating a minimal one on first login.
// Directory failures are logged and never fail the action.
func (g *Gateway) ensureProfile(ctx context.Context, v domain.Verdict) *userdomain.Profile {
	if g.directory == nil {
		return nil
	}
	p, err := g.directory.GetByID(ctx, v.Subject)
	if err != nil {
		g.logger.Warn("directory lookup failed", zap.String("subject", v.Subject), zap.Error(err))
		return nil
	}
	if p != nil {
		return p
	}
	p = &userdomain.Profile{
		ID:       v.Subject,
		Email:    v.Email,
		FullName: v.DisplayName,
		UserType: userTypeForRole(v.Role),
	}
	if err := g.directory.Upsert(ctx, p); err != nil {
		g.logger.Warn("directory create failed", zap.String("subject", v.Subject), zap.Error(err))
		return nil
	}
	return p
}

func (g *Gateway) touchLastLogin(ctx context.Context, subject string) {
	if g.directory == nil {
		return
	}
	if err := g.directory.TouchLastLogin(ctx, subject, g.now().UTC()); err != nil {
		g.logger.Warn("directory last-login update failed", zap.String("subject", subject), zap.Error(err))
	}
}

func (g *Gateway) profile(ctx context.Context, subject string) *userdomain.Profile {
	if g.directory == nil {
		return nil
	}
	p, err := g.directory.GetByID(ctx, subject)
	if err != nil {
		g.logger.Warn("directory lookup failed", zap.String("subject", subject), zap.Error(err))
		return nil
	}
	return p
}

func (g *Gateway) record(ctx context.Context, action, subject, fp string, err error) {
	g.auditor.Record(ctx, auditdomain.Event{
		Subject: subject,
		Action:  action,
		Outcome: auditdomain.OutcomeFailure,
		Reason:  reason(err),
		TokenFP: fp,
	})
}

// userTypeForRole maps a provider role to a directory user type. Owners created this way have no
// business name yet, so they are stored as plain users until they complete their profile.
func userTypeForRole(role string) userdomain.UserType {
	if role == string(userdomain.UserTypeAdmin) {
		return userdomain.UserTypeAdmin
	}
	return userdomain.UserTypeUser
}

// reason is the short label used in audit events and metrics.
func reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrEmailNotVerified):
		return "email_not_verified"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, domain.ErrEmailAlreadyRegistered):
		return "email_already_registered"
	case errors.Is(err, domain.ErrRegistrationUnsupported):
		return "registration_unsupported"
	case errors.Is(err, domain.ErrVerificationUnsupported):
		return "verification_unsupported"
	case errors.Is(err, domain.ErrAlreadyVerified):
		return "already_verified"
	case errors.Is(err, domain.ErrWeakPassword):
		return "weak_password"
	case errors.Is(err, domain.ErrInvalidRegistration):
		return "invalid_registration"
	case errors.Is(err, cookiestore.ErrStoreWrite):
		return "store_write"
	case errors.Is(err, ErrSessionInvalid):
		if k := security.Kind(err); k != "error" {
			return k
		}
		return "session_invalid"
	default:
		return "error"
	}
}
