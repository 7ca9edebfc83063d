package interceptors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"coliving-platform/backend/internal/audit"
	auditdomain "coliving-platform/backend/internal/audit/domain"
	"coliving-platform/backend/internal/metrics"
	policyengine "coliving-platform/backend/internal/policy/engine"
	"coliving-platform/backend/internal/security"
	"coliving-platform/backend/internal/session/cookiestore"
	sessiondomain "coliving-platform/backend/internal/session/domain"
)

// RouteClass is how the guard treats a path.
type RouteClass string

const (
	RoutePublic    RouteClass = "public"
	RouteProtected RouteClass = "protected"
	RouteAPI       RouteClass = "api"
	RouteAuthOnly  RouteClass = "auth_only"
)

// SessionVerifier checks session tokens, including revocation. *service.Gateway implements it.
type SessionVerifier interface {
	VerifyAccess(ctx context.Context, access string) (sessiondomain.Token, error)
	VerifyRefresh(ctx context.Context, refresh string) (sessiondomain.Token, error)
}

// GuardConfig lists route prefixes per class. Prefixes match whole path segments:
// "/dashboard" covers "/dashboard" and "/dashboard/owner" but not "/dashboards".
type GuardConfig struct {
	Protected   []string
	API         []string
	AuthOnly    []string
	LoginPath   string
	LandingPath string
}

// DefaultGuardConfig returns the marketplace's route table.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Protected:   []string{"/dashboard", "/profile", "/settings"},
		API:         []string{"/api/protected"},
		AuthOnly:    []string{"/auth/login", "/auth/register"},
		LoginPath:   "/auth/login",
		LandingPath: "/dashboard",
	}
}

// Guard gates page and API routes on session validity.
type Guard struct {
	cfg      GuardConfig
	verifier SessionVerifier
	cookies  *cookiestore.Store
	policy   policyengine.Evaluator
	auditor  audit.Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewGuard returns a Guard. policy, auditor, m and logger may be nil.
func NewGuard(cfg GuardConfig, verifier SessionVerifier, cookies *cookiestore.Store, policy policyengine.Evaluator, auditor audit.Recorder, m *metrics.Metrics, logger *zap.Logger) *Guard {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/auth/login"
	}
	if cfg.LandingPath == "" {
		cfg.LandingPath = "/dashboard"
	}
	if auditor == nil {
		auditor = audit.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{cfg: cfg, verifier: verifier, cookies: cookies, policy: policy, auditor: auditor, metrics: m, logger: logger}
}

// Classify returns the route class of path. API prefixes win over page prefixes.
func (g *Guard) Classify(path string) RouteClass {
	switch {
	case matchAny(path, g.cfg.API):
		return RouteAPI
	case matchAny(path, g.cfg.Protected):
		return RouteProtected
	case matchAny(path, g.cfg.AuthOnly):
		return RouteAuthOnly
	default:
		return RoutePublic
	}
}

// Middleware applies the guard to every request.
//
// Protected and API routes need a valid access token; failing that, a valid refresh token lets the
// request through without rewriting any cookie (the client refreshes through the gateway). Pages
// without either redirect to the login route with the original path in "redirect"; API routes get
// 401. Auth-only pages (GET/HEAD) redirect a signed-in caller to the landing route; other methods
// on those paths are API calls and pass through.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class := g.Classify(r.URL.Path)
		switch class {
		case RouteProtected, RouteAPI:
			g.protect(w, r, class, next)
		case RouteAuthOnly:
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			access, _ := g.cookies.Bind(w, r).Read()
			if access != "" {
				if _, err := g.verifier.VerifyAccess(r.Context(), access); err == nil {
					g.metrics.Guard(string(class), "redirect_landing")
					http.Redirect(w, r, g.cfg.LandingPath, http.StatusTemporaryRedirect)
					return
				}
			}
			g.metrics.Guard(string(class), "allow")
			next.ServeHTTP(w, r)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (g *Guard) protect(w http.ResponseWriter, r *http.Request, class RouteClass, next http.Handler) {
	ctx := r.Context()
	access, refresh := g.cookies.Bind(w, r).Read()

	tok, err := g.verifier.VerifyAccess(ctx, access)
	if err != nil {
		var rerr error
		tok, rerr = g.verifier.VerifyRefresh(ctx, refresh)
		if rerr != nil {
			g.logger.Debug("guard: no valid session",
				zap.String("path", r.URL.Path),
				zap.String("access", security.Kind(err)),
				zap.String("refresh", security.Kind(rerr)))
			g.auditor.Record(ctx, auditdomain.Event{
				Action:  auditdomain.ActionGuardRedirect,
				Outcome: auditdomain.OutcomeFailure,
				Reason:  security.Kind(rerr),
				Path:    r.URL.Path,
				TokenFP: security.Fingerprint(refresh),
			})
			g.metrics.Guard(string(class), "unauthenticated")
			g.unauthenticated(w, r, class)
			return
		}
	}

	if g.policy != nil {
		allowed, perr := g.policy.Allow(ctx, policyengine.RouteInput{
			Path:   r.URL.Path,
			Method: r.Method,
			Role:   tok.RoleOrDefault(),
		})
		if perr != nil {
			g.logger.Error("guard: route policy failed", zap.String("path", r.URL.Path), zap.Error(perr))
		}
		if !allowed {
			g.auditor.Record(ctx, auditdomain.Event{
				Subject: tok.Subject,
				Action:  auditdomain.ActionGuardForbidden,
				Outcome: auditdomain.OutcomeFailure,
				Reason:  "role " + tok.RoleOrDefault(),
				Path:    r.URL.Path,
			})
			g.metrics.Guard(string(class), "forbidden")
			g.forbidden(w, class)
			return
		}
	}

	g.metrics.Guard(string(class), "allow")
	next.ServeHTTP(w, r.WithContext(WithSession(ctx, tok)))
}

func (g *Guard) unauthenticated(w http.ResponseWriter, r *http.Request, class RouteClass) {
	if class == RouteAPI {
		writeGuardJSON(w, http.StatusUnauthorized, "session invalid, please sign in again", "session_invalid")
		return
	}
	http.Redirect(w, r, g.LoginURL(r.URL.Path), http.StatusTemporaryRedirect)
}

func (g *Guard) forbidden(w http.ResponseWriter, class RouteClass) {
	if class == RouteAPI {
		writeGuardJSON(w, http.StatusForbidden, "insufficient role for this resource", "forbidden")
		return
	}
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

// LoginURL returns the login route with path preserved in the redirect query parameter.
func (g *Guard) LoginURL(path string) string {
	q := url.Values{}
	q.Set("redirect", path)
	return g.cfg.LoginPath + "?" + q.Encode()
}

func writeGuardJSON(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}

func matchAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if underPrefix(path, p) {
			return true
		}
	}
	return false
}

func underPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
