// Package cookiestore persists the session token pair in HTTP cookies.
package cookiestore

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"coliving-platform/backend/internal/session/domain"
)

// Cookie names shared with the browser client.
const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// maxCookieBytes is the per-cookie limit browsers enforce on the serialized Set-Cookie value.
const maxCookieBytes = 4096

// ErrStoreWrite is returned when a session cookie cannot be emitted.
var ErrStoreWrite = errors.New("session store: write failed")

// Options controls cookie attributes. Secure should be true in production.
type Options struct {
	Secure bool
	Domain string
}

// Store builds per-request cookie sessions with fixed attributes.
type Store struct {
	opts Options
}

// New returns a Store with the given options.
func New(opts Options) *Store {
	return &Store{opts: opts}
}

// Bind returns the session bound to one request/response exchange.
func (s *Store) Bind(w http.ResponseWriter, r *http.Request) *Session {
	return &Session{opts: s.opts, w: w, r: r}
}

// Session reads tokens from the incoming request and stages Set-Cookie headers on the response.
// It is not safe for concurrent use; a request has exactly one.
type Session struct {
	opts Options
	w    http.ResponseWriter
	r    *http.Request
}

// Read returns the access and refresh tokens sent with the request. Missing cookies yield "".
func (s *Session) Read() (access, refresh string) {
	return cookieValue(s.r, AccessCookie), cookieValue(s.r, RefreshCookie)
}

// Write stages both cookies. Both values are checked before either is emitted, so a failure
// leaves the response without session cookies from this call.
func (s *Session) Write(access, refresh string) error {
	ac, err := s.build(AccessCookie, access, domain.AccessLifetime)
	if err != nil {
		return err
	}
	rc, err := s.build(RefreshCookie, refresh, domain.RefreshLifetime)
	if err != nil {
		return err
	}
	if err := s.writable(); err != nil {
		return err
	}
	s.replace(ac)
	s.replace(rc)
	return nil
}

// WriteAccess replaces only the access cookie; the refresh cookie is untouched.
func (s *Session) WriteAccess(access string) error {
	ac, err := s.build(AccessCookie, access, domain.AccessLifetime)
	if err != nil {
		return err
	}
	if err := s.writable(); err != nil {
		return err
	}
	s.replace(ac)
	return nil
}

// Clear emits deletion cookies for both tokens and drops any staged values. It never fails.
func (s *Session) Clear() {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		s.replace(&http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   s.opts.Domain,
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   s.opts.Secure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func (s *Session) build(name, value string, lifetime time.Duration) (*http.Cookie, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: empty %s", ErrStoreWrite, name)
	}
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.opts.Domain,
		MaxAge:   int(lifetime / time.Second),
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	if err := c.Valid(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	if n := len(c.String()); n > maxCookieBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrStoreWrite, name, n)
	}
	return c, nil
}

// statusWriter is implemented by response wrappers (chi's WrapResponseWriter) that know whether
// the header has been sent.
type statusWriter interface {
	Status() int
}

func (s *Session) writable() error {
	if sw, ok := s.w.(statusWriter); ok && sw.Status() != 0 {
		return fmt.Errorf("%w: response already committed", ErrStoreWrite)
	}
	return nil
}

// replace removes previously staged Set-Cookie lines for c.Name and appends c.
func (s *Session) replace(c *http.Cookie) {
	h := s.w.Header()
	prefix := c.Name + "="
	var kept []string
	for _, line := range h.Values("Set-Cookie") {
		if !strings.HasPrefix(line, prefix) {
			kept = append(kept, line)
		}
	}
	h.Del("Set-Cookie")
	for _, line := range kept {
		h.Add("Set-Cookie", line)
	}
	http.SetCookie(s.w, c)
}

func cookieValue(r *http.Request, name string) string {
	if r == nil {
		return ""
	}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
