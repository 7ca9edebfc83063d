package sessionclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Sentinel errors for session actions. Login distinguishes an unverified email from bad credentials
// so callers can start a verification flow.
var (
	ErrInvalidCredentials  = errors.New("sessionclient: invalid credentials")
	ErrEmailNotVerified    = errors.New("sessionclient: email address not verified")
	ErrProviderUnavailable = errors.New("sessionclient: identity provider unavailable")
	ErrSessionInvalid      = errors.New("sessionclient: session invalid")
)

// APIError is a non-2xx response from the session API.
type APIError struct {
	Status  int
	Code    string
	Message string
	State   string
}

// Error implements the error interface.
func (e APIError) Error() string {
	code := e.Code
	if code == "" {
		code = "unknown"
	}
	return fmt.Sprintf("%s (%d): %s", code, e.Status, e.Message)
}

// Unwrap maps server error codes onto the package sentinels.
func (e APIError) Unwrap() error {
	switch e.Code {
	case "invalid_credentials":
		return ErrInvalidCredentials
	case "email_not_verified":
		return ErrEmailNotVerified
	case "provider_unavailable":
		return ErrProviderUnavailable
	case "session_invalid":
		return ErrSessionInvalid
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := APIError{Status: resp.StatusCode}
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = resp.Status
		return apiErr
	}
	apiErr.Code = payload.Code
	apiErr.Message = payload.Error
	apiErr.State = payload.State
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return apiErr
}
