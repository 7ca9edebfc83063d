// Package sessionclient keeps a client's view of its session in step with the server: it tracks an
// authenticated flag, refreshes the access token in the background before it expires, and sends the
// caller to the login route when the session dies.
package sessionclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	sessiondomain "coliving-platform/backend/internal/session/domain"
)

const (
	// DefaultRefreshInterval leaves three minutes of slack before the access token expires.
	DefaultRefreshInterval = 12 * time.Minute
	DefaultRequestTimeout  = 10 * time.Second
	DefaultLoginPath       = "/auth/login"

	sessionPath = "/auth/session"
)

// Navigator moves the user to another route, e.g. a browser shell or a CLI prompt.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// User is the signed-in identity as reported by the server.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
	Role          string `json:"role"`
	FullName      string `json:"fullName,omitempty"`
	BusinessName  string `json:"businessName,omitempty"`
	UserType      string `json:"userType,omitempty"`
}

// Config wires the server address and collaborators. Zero values get defaults.
type Config struct {
	BaseURL string
	// HTTPClient must keep cookies; a client without a Jar is copied and given one.
	HTTPClient *http.Client
	// RefreshInterval must be shorter than the access token lifetime.
	RefreshInterval time.Duration
	// RequestTimeout bounds every call to the server, background refreshes included.
	RequestTimeout time.Duration
	LoginPath      string
	Navigator      Navigator
	Logger         *zap.Logger
}

type subscriber struct {
	id int
	fn func(authenticated bool)
}

// Client tracks one session. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	interval   time.Duration
	timeout    time.Duration
	loginPath  string
	nav        Navigator
	logger     *zap.Logger

	mu   sync.Mutex
	user *User
	// generation changes whenever the session ends or restarts; a refresher only acts while its
	// generation is current.
	generation uint64
	stop       context.CancelFunc
	subs       []subscriber
	nextSub    int
	loops      sync.WaitGroup
}

// NewClient validates cfg and returns a Client in the anonymous state.
func NewClient(cfg Config) (*Client, error) {
	base, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	interval := cfg.RefreshInterval
	if interval == 0 {
		interval = DefaultRefreshInterval
	}
	if interval < 0 || interval >= sessiondomain.AccessLifetime {
		return nil, fmt.Errorf("sessionclient: refresh interval %s must be positive and shorter than %s", interval, sessiondomain.AccessLifetime)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		copied := *hc
		copied.Jar = jar
		hc = &copied
	}
	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	nav := cfg.Navigator
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    base,
		httpClient: hc,
		interval:   interval,
		timeout:    timeout,
		loginPath:  loginPath,
		nav:        nav,
		logger:     logger,
	}, nil
}

func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("sessionclient: base URL required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("sessionclient: invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("sessionclient: base URL needs scheme and host")
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

// IsAuthenticated reports the local authenticated flag.
func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user != nil
}

// User returns a copy of the signed-in user, or nil when anonymous.
func (c *Client) User() *User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// Subscribe registers fn to be called whenever the authenticated flag flips. The returned function
// removes the subscription.
func (c *Client) Subscribe(fn func(authenticated bool)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// Init asks the server for the current session. An anonymous answer is not an error.
func (c *Client) Init(ctx context.Context) error {
	var out sessionResponse
	err := c.call(ctx, http.MethodGet, nil, &out)
	if err == nil && out.User != nil {
		c.begin(out.User)
		return nil
	}
	c.end()
	var apiErr APIError
	if err == nil || (errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized) {
		return nil
	}
	return err
}

// Login signs in and starts the background refresher. It returns ErrEmailNotVerified,
// ErrInvalidCredentials or ErrProviderUnavailable (via errors.Is) for the matching server answers.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	var out sessionResponse
	if err := c.call(ctx, http.MethodPost, sessionRequest{Action: "login", Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, errors.New("sessionclient: login response has no user")
	}
	c.begin(out.User)
	return c.User(), nil
}

// Refresh asks the server for a new access token. It does not change local state on failure;
// the background refresher handles that.
func (c *Client) Refresh(ctx context.Context) error {
	var out sessionResponse
	if err := c.call(ctx, http.MethodPost, sessionRequest{Action: "refresh"}, &out); err != nil {
		return err
	}
	if out.User != nil {
		c.mu.Lock()
		if c.user != nil {
			u := *out.User
			c.user = &u
		}
		c.mu.Unlock()
	}
	return nil
}

// Logout cancels the refresher, clears local state, tells the server and navigates to the login
// route. Local state is cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	c.end()
	err := c.call(ctx, http.MethodPost, sessionRequest{Action: "logout"}, nil)
	if err != nil {
		c.logger.Warn("sessionclient: logout request failed", zap.Error(err))
	}
	c.nav.Navigate(c.loginPath)
	return err
}

// Close cancels the background refresher without contacting the server and waits for it to exit.
func (c *Client) Close() {
	c.mu.Lock()
	c.generation++
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	c.mu.Unlock()
	c.loops.Wait()
}

// begin marks the session authenticated and (re)starts the refresher for a new generation.
func (c *Client) begin(u *User) {
	c.mu.Lock()
	was := c.user != nil
	cp := *u
	c.user = &cp
	if c.stop != nil {
		c.stop()
	}
	c.generation++
	gen := c.generation
	ctx, cancel := context.WithCancel(context.Background())
	c.stop = cancel
	c.loops.Add(1)
	c.mu.Unlock()

	go c.refreshLoop(ctx, gen)
	if !was {
		c.notify(true)
	}
}

// end clears the session and cancels the refresher.
func (c *Client) end() {
	c.mu.Lock()
	was := c.user != nil
	c.user = nil
	c.generation++
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	c.mu.Unlock()
	if was {
		c.notify(false)
	}
}

// expire ends generation gen after a failed refresh. It is a no-op when gen is stale.
func (c *Client) expire(gen uint64) bool {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return false
	}
	was := c.user != nil
	c.user = nil
	c.generation++
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	c.mu.Unlock()
	if was {
		c.notify(false)
	}
	return true
}

func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation && c.user != nil
}

func (c *Client) refreshLoop(ctx context.Context, gen uint64) {
	defer c.loops.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.current(gen) {
				return
			}
			err := c.Refresh(ctx)
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if c.expire(gen) {
				c.logger.Info("sessionclient: background refresh failed, session ended", zap.Error(err))
				c.nav.Navigate(c.loginPath)
			}
			return
		}
	}
}

func (c *Client) notify(authenticated bool) {
	c.mu.Lock()
	subs := make([]subscriber, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()
	for _, s := range subs {
		s.fn(authenticated)
	}
}

type sessionRequest struct {
	Action   string `json:"action"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

type sessionResponse struct {
	State     string `json:"state"`
	User      *User  `json:"user,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
	Success   bool   `json:"success"`
}

func (c *Client) call(ctx context.Context, method string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+sessionPath, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sessionclient: %s %s: %w", method, sessionPath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("sessionclient: decode response: %w", err)
	}
	return nil
}
