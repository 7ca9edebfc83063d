package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"coliving-platform/backend/internal/identity/domain"
)

// Supabase authenticates with the GoTrue password grant and registers through its signup endpoint.
type Supabase struct {
	baseURL string
	anonKey string
	client  *http.Client
}

// NewSupabase returns a Supabase provider for the project at baseURL.
func NewSupabase(baseURL, anonKey string, client *http.Client) *Supabase {
	if client == nil {
		client = http.DefaultClient
	}
	return &Supabase{baseURL: strings.TrimRight(baseURL, "/"), anonKey: anonKey, client: client}
}

func (s *Supabase) Kind() domain.ProviderKind { return domain.ProviderSupabase }

type supabaseUser struct {
	ID               string  `json:"id"`
	Email            string  `json:"email"`
	EmailConfirmedAt *string `json:"email_confirmed_at"`
	UserMetadata     struct {
		FullName string `json:"full_name"`
		UserType string `json:"user_type"`
	} `json:"user_metadata"`
	AppMetadata struct {
		Role string `json:"role"`
	} `json:"app_metadata"`
}

type supabaseError struct {
	Error            string `json:"error"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

func (e supabaseError) text() string {
	return strings.ToLower(strings.Join([]string{e.Error, e.ErrorCode, e.ErrorDescription, e.Msg}, " "))
}

func (s *Supabase) headers() map[string]string {
	return map[string]string{
		"apikey":        s.anonKey,
		"Authorization": "Bearer " + s.anonKey,
	}
}

func (s *Supabase) Authenticate(ctx context.Context, email, password string) (domain.Verdict, error) {
	status, raw, err := postJSON(ctx, s.client, s.baseURL+"/auth/v1/token?grant_type=password", s.headers(), map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return domain.Verdict{}, err
	}
	if status != http.StatusOK {
		return domain.Verdict{}, s.classify(status, raw)
	}
	var body struct {
		User supabaseUser `json:"user"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.User.ID == "" {
		return domain.Verdict{}, fmt.Errorf("%w: malformed token response", domain.ErrProviderUnavailable)
	}
	return supabaseVerdict(body.User, email), nil
}

// ResendVerification resends the signup confirmation. The password grant proves ownership:
// GoTrue answers email_not_confirmed only once the password matched.
func (s *Supabase) ResendVerification(ctx context.Context, email, password string) error {
	email = domain.NormalizeEmail(email)
	v, err := s.Authenticate(ctx, email, password)
	switch {
	case err == nil && v.EmailVerified:
		return domain.ErrAlreadyVerified
	case err != nil && !errors.Is(err, domain.ErrEmailNotVerified):
		return err
	}
	status, raw, err := postJSON(ctx, s.client, s.baseURL+"/auth/v1/resend", s.headers(), map[string]string{
		"type":  "signup",
		"email": email,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return unavailable(status, raw)
	}
	return nil
}

// Register signs the user up. Supabase sends its own confirmation email; the account stays
// unverified until the link is followed.
func (s *Supabase) Register(ctx context.Context, reg domain.Registration) (domain.Verdict, error) {
	status, raw, err := postJSON(ctx, s.client, s.baseURL+"/auth/v1/signup", s.headers(), map[string]any{
		"email":    domain.NormalizeEmail(reg.Email),
		"password": reg.Password,
		"data": map[string]string{
			"full_name":     reg.FullName,
			"business_name": reg.BusinessName,
			"user_type":     reg.UserType,
		},
	})
	if err != nil {
		return domain.Verdict{}, err
	}
	if status != http.StatusOK {
		var se supabaseError
		_ = json.Unmarshal(raw, &se)
		t := se.text()
		switch {
		case strings.Contains(t, "already registered") || strings.Contains(t, "user_already_exists"):
			return domain.Verdict{}, domain.ErrEmailAlreadyRegistered
		case strings.Contains(t, "weak_password") || strings.Contains(t, "password should"):
			return domain.Verdict{}, fmt.Errorf("%w: %s", domain.ErrWeakPassword, se.Msg)
		}
		return domain.Verdict{}, unavailable(status, raw)
	}
	// With confirmations on, the body is the user; with them off it is a session wrapping the user.
	var u supabaseUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return domain.Verdict{}, fmt.Errorf("%w: malformed signup response", domain.ErrProviderUnavailable)
	}
	if u.ID == "" {
		var wrapped struct {
			User supabaseUser `json:"user"`
		}
		if json.Unmarshal(raw, &wrapped) == nil {
			u = wrapped.User
		}
	}
	if u.ID == "" {
		return domain.Verdict{}, fmt.Errorf("%w: signup response without user", domain.ErrProviderUnavailable)
	}
	return supabaseVerdict(u, reg.Email), nil
}

func (s *Supabase) classify(status int, raw []byte) error {
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		var se supabaseError
		if json.Unmarshal(raw, &se) == nil {
			t := se.text()
			switch {
			case strings.Contains(t, "email_not_confirmed") || strings.Contains(t, "email not confirmed"):
				return domain.ErrEmailNotVerified
			case strings.Contains(t, "invalid_grant") || strings.Contains(t, "invalid_credentials") || strings.Contains(t, "invalid login"):
				return domain.ErrInvalidCredentials
			}
		}
	}
	return unavailable(status, raw)
}

func supabaseVerdict(u supabaseUser, fallbackEmail string) domain.Verdict {
	// user_metadata is writable by the user, so it can only ever yield "owner".
	role := u.AppMetadata.Role
	if role == "" || role == "authenticated" {
		role = ""
		if u.UserMetadata.UserType == "owner" {
			role = "owner"
		}
	}
	return domain.Verdict{
		Subject:       u.ID,
		Email:         firstNonEmpty(u.Email, domain.NormalizeEmail(fallbackEmail)),
		DisplayName:   u.UserMetadata.FullName,
		EmailVerified: u.EmailConfirmedAt != nil && *u.EmailConfirmedAt != "",
		Role:          role,
		Provider:      domain.ProviderSupabase,
	}
}
