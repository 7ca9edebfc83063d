package domain

import "time"

// Action names recorded for session events.
const (
	ActionLogin          = "login"
	ActionRefresh        = "refresh"
	ActionLogout         = "logout"
	ActionRegister       = "register"
	ActionVerifyResend   = "verify_resend"
	ActionGuardRedirect  = "guard_redirect"
	ActionGuardForbidden = "guard_forbidden"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is one audit record. Tokens are never stored; TokenFP is a short fingerprint.
type Event struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject,omitempty"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	Path      string    `json:"path,omitempty"`
	IP        string    `json:"ip,omitempty"`
	TokenFP   string    `json:"token_fp,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
