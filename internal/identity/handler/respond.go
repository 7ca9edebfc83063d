package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"coliving-platform/backend/internal/identity/domain"
	"coliving-platform/backend/internal/identity/service"
	"coliving-platform/backend/internal/security"
	"coliving-platform/backend/internal/session/cookiestore"
)

// Error codes returned in the "code" field of error bodies.
const (
	CodeBadRequest              = "bad_request"
	CodeInvalidCredentials      = "invalid_credentials"
	CodeEmailNotVerified        = "email_not_verified"
	CodeSessionInvalid          = "session_invalid"
	CodeProviderUnavailable     = "provider_unavailable"
	CodeStoreWrite              = "store_write_failed"
	CodeEmailTaken              = "email_already_registered"
	CodeWeakPassword            = "weak_password"
	CodeRegistrationUnsupported = "registration_unsupported"
	CodeVerificationUnsupported = "verification_unsupported"
	CodeAlreadyVerified         = "already_verified"
	CodeInternal                = "internal"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	State string `json:"state,omitempty"`
}

// statusFor maps gateway and provider errors to an HTTP status, a code and a user-facing message.
// Token failures share one generic message; their kind is never returned to the client.
func statusFor(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password"
	case errors.Is(err, domain.ErrEmailNotVerified):
		return http.StatusUnauthorized, CodeEmailNotVerified, "please verify your email address before signing in"
	case errors.Is(err, service.ErrSessionInvalid),
		errors.Is(err, security.ErrMalformedToken),
		errors.Is(err, security.ErrInvalidSignature),
		errors.Is(err, security.ErrExpired):
		return http.StatusUnauthorized, CodeSessionInvalid, service.ErrSessionInvalid.Error()
	case errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, CodeProviderUnavailable, "sign-in is temporarily unavailable, please try again"
	case errors.Is(err, cookiestore.ErrStoreWrite):
		return http.StatusInternalServerError, CodeStoreWrite, "could not save the session, please try again"
	case errors.Is(err, domain.ErrEmailAlreadyRegistered):
		return http.StatusConflict, CodeEmailTaken, "an account with this email already exists"
	case errors.Is(err, domain.ErrWeakPassword):
		return http.StatusBadRequest, CodeWeakPassword,
			"password must be at least 8 characters and include upper and lower case letters, a number and one of @$!%*?&"
	case errors.Is(err, domain.ErrInvalidRegistration):
		return http.StatusBadRequest, CodeBadRequest, err.Error()
	case errors.Is(err, service.ErrUnknownAction):
		return http.StatusBadRequest, CodeBadRequest, "unknown action"
	case errors.Is(err, domain.ErrRegistrationUnsupported):
		return http.StatusNotImplemented, CodeRegistrationUnsupported, "registration is handled by the identity provider"
	case errors.Is(err, domain.ErrVerificationUnsupported):
		return http.StatusNotImplemented, CodeVerificationUnsupported, "verification emails are not available, contact support"
	case errors.Is(err, domain.ErrAlreadyVerified):
		return http.StatusConflict, CodeAlreadyVerified, "this email address is already verified, please sign in"
	default:
		return http.StatusInternalServerError, CodeInternal, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg, state string) {
	writeJSON(w, status, ErrorBody{Error: msg, Code: code, State: state})
}
