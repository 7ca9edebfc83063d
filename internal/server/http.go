package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	healthhandler "coliving-platform/backend/internal/health/handler"
	identityhandler "coliving-platform/backend/internal/identity/handler"
	"coliving-platform/backend/internal/metrics"
	"coliving-platform/backend/internal/server/interceptors"
)

// HTTPDeps holds what the HTTP router serves. Metrics, Health and Logger may be nil.
type HTTPDeps struct {
	Identity *identityhandler.Handler
	Guard    *interceptors.Guard
	Health   *healthhandler.Checker
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	// CORSOrigin is sent as Access-Control-Allow-Origin on /api/ responses.
	CORSOrigin string
	// StaticDir, when set, serves page routes from disk instead of placeholder pages.
	StaticDir string
}

// NewRouter builds the HTTP handler: probes and metrics, the session API, the protected API
// example and the page routes, all behind the route guard.
func NewRouter(d HTTPDeps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(interceptors.ClientAddr)
	r.Use(interceptors.Tracing)
	r.Use(d.Metrics.Middleware)
	r.Use(interceptors.RequestLogger(logger, "/healthz", "/readyz", "/metrics"))
	r.Use(middleware.Recoverer)
	r.Use(interceptors.CORS("/api/", d.CORSOrigin))
	if d.Guard != nil {
		r.Use(d.Guard.Middleware)
	}

	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}
	if d.Health != nil {
		r.Get("/healthz", d.Health.Live)
		r.Get("/readyz", d.Health.ReadyHandler)
	}

	if d.Identity != nil {
		d.Identity.Register(r)
	}

	r.Route("/api/protected", func(r chi.Router) {
		r.Get("/example", protectedExample)
		r.Post("/example", protectedExample)
	})

	pages := newPages(d.StaticDir)
	for _, p := range []string{"/", "/dashboard", "/dashboard/*", "/profile", "/profile/*", "/settings", "/settings/*", "/auth/login", "/auth/register"} {
		r.Get(p, pages.ServeHTTP)
	}
	return r
}

type exampleResponse struct {
	Message string      `json:"message"`
	User    exampleUser `json:"user"`
}

type exampleUser struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
	Role          string `json:"role"`
}

// protectedExample echoes the caller's session. The guard has already rejected requests without one.
func protectedExample(w http.ResponseWriter, r *http.Request) {
	tok, ok := interceptors.SessionFrom(r.Context())
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "code": "session_invalid"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(exampleResponse{
		Message: "This is a protected API route",
		User: exampleUser{
			UID:           tok.Subject,
			Email:         tok.Email,
			DisplayName:   tok.DisplayName,
			EmailVerified: tok.EmailVerified,
			Role:          tok.RoleOrDefault(),
		},
	})
}
