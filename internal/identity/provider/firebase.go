package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"coliving-platform/backend/internal/identity/domain"
)

// DefaultFirebaseBaseURL is the Identity Toolkit REST endpoint.
const DefaultFirebaseBaseURL = "https://identitytoolkit.googleapis.com"

// Firebase authenticates with the Identity Toolkit password grant, then looks the account up to
// read the verified flag and custom claims.
type Firebase struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewFirebase returns a Firebase provider. An empty baseURL uses DefaultFirebaseBaseURL and a nil
// client uses http.DefaultClient; callers bound latency with WithTimeout.
func NewFirebase(apiKey, baseURL string, client *http.Client) *Firebase {
	if baseURL == "" {
		baseURL = DefaultFirebaseBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Firebase{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (f *Firebase) Kind() domain.ProviderKind { return domain.ProviderFirebase }

type firebaseSignInResponse struct {
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	IDToken     string `json:"idToken"`
}

type firebaseLookupResponse struct {
	Users []struct {
		LocalID          string `json:"localId"`
		Email            string `json:"email"`
		EmailVerified    bool   `json:"emailVerified"`
		DisplayName      string `json:"displayName"`
		CustomAttributes string `json:"customAttributes"`
	} `json:"users"`
}

type firebaseError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Identity Toolkit messages that mean the pair was rejected; messages may carry a " : detail" suffix.
var firebaseRejections = []string{
	"EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED",
	"INVALID_EMAIL", "MISSING_PASSWORD", "MISSING_EMAIL",
}

func (f *Firebase) Authenticate(ctx context.Context, email, password string) (domain.Verdict, error) {
	v, _, err := f.signIn(ctx, email, password)
	return v, err
}

// ResendVerification signs in to obtain an ID token, then asks Identity Toolkit to send the
// VERIFY_EMAIL message for that account.
func (f *Firebase) ResendVerification(ctx context.Context, email, password string) error {
	v, idToken, err := f.signIn(ctx, email, password)
	if err != nil {
		return err
	}
	if v.EmailVerified {
		return domain.ErrAlreadyVerified
	}
	status, raw, err := postJSON(ctx, f.client, f.endpoint("accounts:sendOobCode"), nil, map[string]string{
		"requestType": "VERIFY_EMAIL",
		"idToken":     idToken,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return unavailable(status, raw)
	}
	return nil
}

// signIn runs the password grant and the account lookup, returning the verdict and the ID token.
func (f *Firebase) signIn(ctx context.Context, email, password string) (domain.Verdict, string, error) {
	status, raw, err := postJSON(ctx, f.client, f.endpoint("accounts:signInWithPassword"), nil, map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return domain.Verdict{}, "", err
	}
	if status != http.StatusOK {
		return domain.Verdict{}, "", f.classify(status, raw)
	}
	var signIn firebaseSignInResponse
	if err := json.Unmarshal(raw, &signIn); err != nil || signIn.LocalID == "" {
		return domain.Verdict{}, "", fmt.Errorf("%w: malformed sign-in response", domain.ErrProviderUnavailable)
	}

	status, raw, err = postJSON(ctx, f.client, f.endpoint("accounts:lookup"), nil, map[string]any{"idToken": signIn.IDToken})
	if err != nil {
		return domain.Verdict{}, "", err
	}
	if status != http.StatusOK {
		return domain.Verdict{}, "", unavailable(status, raw)
	}
	var lookup firebaseLookupResponse
	if err := json.Unmarshal(raw, &lookup); err != nil || len(lookup.Users) == 0 {
		return domain.Verdict{}, "", fmt.Errorf("%w: malformed lookup response", domain.ErrProviderUnavailable)
	}
	u := lookup.Users[0]
	v := domain.Verdict{
		Subject:       signIn.LocalID,
		Email:         firstNonEmpty(u.Email, signIn.Email, email),
		DisplayName:   firstNonEmpty(u.DisplayName, signIn.DisplayName),
		EmailVerified: u.EmailVerified,
		Provider:      domain.ProviderFirebase,
	}
	if u.CustomAttributes != "" {
		var claims struct {
			Role string `json:"role"`
		}
		if json.Unmarshal([]byte(u.CustomAttributes), &claims) == nil {
			v.Role = claims.Role
		}
	}
	return v, signIn.IDToken, nil
}

func (f *Firebase) endpoint(method string) string {
	return f.baseURL + "/v1/" + method + "?key=" + url.QueryEscape(f.apiKey)
}

func (f *Firebase) classify(status int, raw []byte) error {
	if status == http.StatusBadRequest {
		var fe firebaseError
		if json.Unmarshal(raw, &fe) == nil {
			for _, m := range firebaseRejections {
				if strings.HasPrefix(fe.Error.Message, m) {
					return domain.ErrInvalidCredentials
				}
			}
		}
	}
	return unavailable(status, raw)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
