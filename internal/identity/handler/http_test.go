package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"coliving-platform/backend/internal/db"
	"coliving-platform/backend/internal/identity/domain"
	"coliving-platform/backend/internal/identity/provider"
	identityrepo "coliving-platform/backend/internal/identity/repository"
	"coliving-platform/backend/internal/identity/service"
	"coliving-platform/backend/internal/security"
	"coliving-platform/backend/internal/session/cookiestore"
	sessiondomain "coliving-platform/backend/internal/session/domain"
	userrepo "coliving-platform/backend/internal/user/repository"
)

const goodPassword = "Room$eeker1"

type testServer struct {
	router http.Handler
	local  *provider.Local
	clock  *security.FakeClock
	jar    map[string]*http.Cookie
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	bdb, err := db.OpenBolt(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bdb.Close() })

	creds, err := identityrepo.NewBoltRepository(bdb)
	require.NoError(t, err)
	profiles, err := userrepo.NewBoltRepository(bdb)
	require.NoError(t, err)

	clock := security.NewFakeClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	local := provider.NewLocal(creds, security.NewHasher(bcrypt.MinCost), false)
	gw := service.NewGateway(local, security.NewTestCodec(clock.Now),
		service.WithDirectory(profiles),
		service.WithClock(clock.Now),
	)

	r := chi.NewRouter()
	New(gw, cookiestore.New(cookiestore.Options{}), nil).Register(r)
	return &testServer{router: r, local: local, clock: clock, jar: map[string]*http.Cookie{}}
}

// do sends a request carrying the jar's cookies and folds Set-Cookie headers back into the jar.
func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range s.jar {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(s.jar, c.Name)
			continue
		}
		s.jar[c.Name] = c
	}
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestSessionFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/auth/register",
		`{"email":"mia@example.com","password":"`+goodPassword+`","fullName":"Mia Park","businessName":"Park Rooms","userType":"owner"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Empty(t, rec.Result().Cookies())

	rec = s.do(t, http.MethodPost, "/auth/session", `{"action":"login","email":"mia@example.com","password":"`+goodPassword+`"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeEmailNotVerified, decodeBody[ErrorBody](t, rec).Code)
	assert.Empty(t, rec.Result().Cookies())

	require.NoError(t, s.local.VerifyEmail(context.Background(), "mia@example.com"))

	rec = s.do(t, http.MethodPost, "/auth/session", `{"action":"login","email":"mia@example.com","password":"`+goodPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decodeBody[SessionResponse](t, rec)
	assert.Equal(t, string(sessiondomain.StateAuthenticated), login.State)
	require.NotNil(t, login.User)
	assert.Equal(t, "owner", login.User.Role)
	assert.Equal(t, "Park Rooms", login.User.BusinessName)
	require.Contains(t, s.jar, cookiestore.AccessCookie)
	require.Contains(t, s.jar, cookiestore.RefreshCookie)
	refresh := s.jar[cookiestore.RefreshCookie].Value

	rec = s.do(t, http.MethodGet, "/auth/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mia@example.com", decodeBody[SessionResponse](t, rec).User.Email)

	s.clock.Advance(sessiondomain.AccessLifetime)
	rec = s.do(t, http.MethodGet, "/auth/session", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody[ErrorBody](t, rec)
	assert.Equal(t, CodeSessionInvalid, body.Code)
	assert.NotContains(t, body.Error, "expired")

	rec = s.do(t, http.MethodPost, "/auth/session", `{"action":"refresh"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cookiestore.AccessCookie, cookies[0].Name)
	assert.Equal(t, refresh, s.jar[cookiestore.RefreshCookie].Value)

	rec = s.do(t, http.MethodGet, "/auth/session", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/session", `{"action":"logout"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Result().Cookies(), 2)
	assert.Empty(t, s.jar)

	rec = s.do(t, http.MethodGet, "/auth/session", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSession_BadRequests(t *testing.T) {
	s := newTestServer(t)
	for name, body := range map[string]string{
		"invalid json":      `{"action":`,
		"unknown action":    `{"action":"rotate"}`,
		"login no email":    `{"action":"login","password":"x"}`,
		"login bad email":   `{"action":"login","email":"nope","password":"x"}`,
		"login no password": `{"action":"login","email":"a@example.com"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/auth/session", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, CodeBadRequest, decodeBody[ErrorBody](t, rec).Code)
		})
	}
}

func TestSession_WrongPassword(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/auth/session", `{"action":"login","email":"ghost@example.com","password":"Wh@tever1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeInvalidCredentials, decodeBody[ErrorBody](t, rec).Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestSession_RefreshWithoutCookie(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/auth/session", `{"action":"refresh"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody[ErrorBody](t, rec)
	assert.Equal(t, CodeSessionInvalid, body.Code)
	assert.Equal(t, string(sessiondomain.StateRefreshFailed), body.State)
}

func TestSession_LogoutWithoutSession(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/auth/session", `{"action":"logout"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[SessionResponse](t, rec).Success)
	for _, c := range rec.Result().Cookies() {
		assert.Empty(t, c.Value)
		assert.Less(t, c.MaxAge, 0)
	}
	assert.Len(t, rec.Result().Cookies(), 2)
}

func TestSession_LogoutIgnoresStrayFields(t *testing.T) {
	s := newTestServer(t)
	_, err := s.local.Register(context.Background(), domain.Registration{
		Email: "ivy@example.com", Password: goodPassword, FullName: "Ivy",
	})
	require.NoError(t, err)
	require.NoError(t, s.local.VerifyEmail(context.Background(), "ivy@example.com"))
	rec := s.do(t, http.MethodPost, "/auth/session", `{"action":"login","email":"ivy@example.com","password":"`+goodPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, s.jar, 2)

	for _, body := range []string{
		`{"action":"logout","email":"not-an-email"}`,
		`{"action":"logout","email":"","password":"` + strings.Repeat("p", 500) + `"}`,
		`{"action":"logout","email":42,"extra":true}`,
	} {
		rec = s.do(t, http.MethodPost, "/auth/session", body)
		require.Equal(t, http.StatusOK, rec.Code, body)
		assert.Len(t, rec.Result().Cookies(), 2, body)
		assert.Empty(t, s.jar, body)
	}

	rec = s.do(t, http.MethodPost, "/auth/session", `{"action":"refresh","email":"not-an-email"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignUp_Errors(t *testing.T) {
	s := newTestServer(t)
	ok := `{"email":"lee@example.com","password":"` + goodPassword + `","fullName":"Lee"}`
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/auth/register", ok).Code)

	rec := s.do(t, http.MethodPost, "/auth/register", ok)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeEmailTaken, decodeBody[ErrorBody](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/auth/register", `{"email":"weak@example.com","password":"password1","fullName":"W"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeWeakPassword, decodeBody[ErrorBody](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/auth/register", `{"email":"o@example.com","password":"`+goodPassword+`","fullName":"O","userType":"owner"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[ErrorBody](t, rec).Error, "businessName")

	rec = s.do(t, http.MethodPost, "/auth/register", `{"email":"x@example.com","password":"`+goodPassword+`","fullName":"X","userType":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResendVerification_LocalProvider(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/auth/verify/resend", `{"email":"ivy@example.com","password":"`+goodPassword+`"}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, CodeVerificationUnsupported, decodeBody[ErrorBody](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/auth/verify/resend", `{"email":"not-an-email","password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResendVerification_Accepted(t *testing.T) {
	var resent atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error_code":"email_not_confirmed","msg":"Email not confirmed"}`))
		case "/auth/v1/resend":
			resent.Add(1)
			_, _ = w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	gw := service.NewGateway(provider.NewSupabase(upstream.URL, "anon", upstream.Client()), security.NewTestCodec(nil))
	r := chi.NewRouter()
	New(gw, cookiestore.New(cookiestore.Options{}), nil).Register(r)

	req := httptest.NewRequest(http.MethodPost, "/auth/verify/resend", strings.NewReader(`{"email":"sam@example.com","password":"pw"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, int32(1), resent.Load())
	assert.Empty(t, rec.Result().Cookies())
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials},
		{domain.ErrEmailNotVerified, http.StatusUnauthorized, CodeEmailNotVerified},
		{service.ErrSessionInvalid, http.StatusUnauthorized, CodeSessionInvalid},
		{security.ErrInvalidSignature, http.StatusUnauthorized, CodeSessionInvalid},
		{domain.ErrProviderUnavailable, http.StatusServiceUnavailable, CodeProviderUnavailable},
		{cookiestore.ErrStoreWrite, http.StatusInternalServerError, CodeStoreWrite},
		{domain.ErrEmailAlreadyRegistered, http.StatusConflict, CodeEmailTaken},
		{domain.ErrRegistrationUnsupported, http.StatusNotImplemented, CodeRegistrationUnsupported},
		{domain.ErrVerificationUnsupported, http.StatusNotImplemented, CodeVerificationUnsupported},
		{domain.ErrAlreadyVerified, http.StatusConflict, CodeAlreadyVerified},
		{service.ErrUnknownAction, http.StatusBadRequest, CodeBadRequest},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, c := range cases {
		status, code, msg := statusFor(c.err)
		assert.Equal(t, c.status, status, c.err.Error())
		assert.Equal(t, c.code, code, c.err.Error())
		assert.NotEmpty(t, msg)
	}
}
