// Package handler serves the session endpoints: POST/GET /auth/session, POST /auth/register and
// POST /auth/verify/resend.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"coliving-platform/backend/internal/identity/domain"
	"coliving-platform/backend/internal/identity/service"
	"coliving-platform/backend/internal/session/cookiestore"
	sessiondomain "coliving-platform/backend/internal/session/domain"
	userdomain "coliving-platform/backend/internal/user/domain"
)

const maxBodyBytes = 64 << 10

// Handler exposes the auth gateway over HTTP with cookie-backed sessions.
type Handler struct {
	gateway  *service.Gateway
	cookies  *cookiestore.Store
	validate *validator.Validate
	logger   *zap.Logger
}

// New returns a Handler. logger may be nil.
func New(gateway *service.Gateway, cookies *cookiestore.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{gateway: gateway, cookies: cookies, validate: v, logger: logger}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/session", h.Session)
	r.Get("/auth/session", h.Current)
	r.Post("/auth/register", h.SignUp)
	r.Post("/auth/verify/resend", h.ResendVerification)
}

// SessionRequest is the action envelope of POST /auth/session. Other fields are read per action.
type SessionRequest struct {
	Action string `json:"action" validate:"required,oneof=login refresh logout"`
}

// LoginCredentials is read from the same body when the action is login.
type LoginCredentials struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email        string `json:"email" validate:"required,email,max=254"`
	Password     string `json:"password" validate:"required,min=8,max=72"`
	FullName     string `json:"fullName" validate:"required,max=100"`
	BusinessName string `json:"businessName" validate:"required_if=UserType owner,max=200"`
	UserType     string `json:"userType" validate:"omitempty,oneof=user owner"`
}

// ResendRequest is the body of POST /auth/verify/resend.
type ResendRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

// UserView is the identity returned to the client: token claims plus directory display fields.
type UserView struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"displayName,omitempty"`
	EmailVerified bool       `json:"emailVerified"`
	Role          string     `json:"role"`
	FullName      string     `json:"fullName,omitempty"`
	BusinessName  string     `json:"businessName,omitempty"`
	UserType      string     `json:"userType,omitempty"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
}

// SessionResponse is the success body of session actions.
type SessionResponse struct {
	State     string    `json:"state"`
	User      *UserView `json:"user,omitempty"`
	ExpiresAt string    `json:"expiresAt,omitempty"`
	Success   bool      `json:"success"`
}

// Session dispatches login, refresh and logout.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error(), "")
		return
	}
	var req SessionRequest
	if err := h.unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error(), "")
		return
	}
	// Refresh and logout ignore credentials, so a stray field never blocks clearing a session.
	var creds LoginCredentials
	if service.Action(req.Action) == service.ActionLogin {
		if err := h.unmarshal(body, &creds); err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error(), "")
			return
		}
	}
	store := h.cookies.Bind(w, r)
	res, err := h.gateway.Dispatch(r.Context(), store, service.Request{
		Action:   service.Action(req.Action),
		Email:    creds.Email,
		Password: creds.Password,
	})
	if err != nil {
		h.fail(w, r, err, res)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(res))
}

// Current answers GET /auth/session with the identity behind a valid access cookie.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	res, err := h.gateway.Current(r.Context(), h.cookies.Bind(w, r))
	if err != nil {
		h.fail(w, r, err, res)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(res))
}

// SignUp creates an account. The caller signs in separately once the email is verified.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error(), "")
		return
	}
	p, err := h.gateway.Register(r.Context(), domain.Registration{
		Email:        req.Email,
		Password:     req.Password,
		FullName:     req.FullName,
		BusinessName: req.BusinessName,
		UserType:     req.UserType,
	})
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    profileView(p),
	})
}

// ResendVerification sends the verification email again for an account that cannot sign in yet.
func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req ResendRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error(), "")
		return
	}
	if err := h.gateway.ResendVerification(r.Context(), req.Email, req.Password); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, res *service.Result) {
	status, code, msg := statusFor(err)
	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.String("code", code),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("auth request failed", fields...)
	} else {
		h.logger.Debug("auth request rejected", fields...)
	}
	var state string
	if res != nil {
		state = string(res.State)
	}
	writeError(w, status, code, msg, state)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	return h.unmarshal(body, v)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.New("invalid JSON body")
	}
	return body, nil
}

// unmarshal decodes body into v and validates it, reporting the first failing field.
func (h *Handler) unmarshal(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return errors.New("invalid JSON body")
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %s validation", fe.Field(), fe.Tag())
		}
		return err
	}
	return nil
}

func sessionResponse(res *service.Result) SessionResponse {
	out := SessionResponse{State: string(res.State), Success: true}
	if res.State != sessiondomain.StateAuthenticated {
		return out
	}
	c := res.Claims
	u := &UserView{
		ID:            c.Subject,
		Email:         c.Email,
		DisplayName:   c.DisplayName,
		EmailVerified: c.EmailVerified,
		Role:          c.RoleOrDefault(),
	}
	if p := res.Profile; p != nil {
		u.FullName = p.FullName
		u.BusinessName = p.BusinessName
		u.UserType = string(p.UserType)
		u.LastLoginAt = p.LastLoginAt
	}
	out.User = u
	if !res.AccessExpiresAt.IsZero() {
		out.ExpiresAt = res.AccessExpiresAt.UTC().Format(time.RFC3339)
	}
	return out
}

func profileView(p *userdomain.Profile) *UserView {
	return &UserView{
		ID:           p.ID,
		Email:        p.Email,
		Role:         string(p.UserType),
		FullName:     p.FullName,
		BusinessName: p.BusinessName,
		UserType:     string(p.UserType),
	}
}
