package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/multierr"
)

const checkTimeout = 2 * time.Second

// Pinger is implemented by *sql.DB and by PingFunc adapters (Redis).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is implemented by the OPA route policy evaluator.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// Checker reports readiness from the service's backing dependencies. Nil dependencies are skipped.
type Checker struct {
	pingers map[string]Pinger
	policy  PolicyChecker
}

// NewChecker returns a Checker. pingers is keyed by dependency name (postgres, redis).
func NewChecker(pingers map[string]Pinger, policy PolicyChecker) *Checker {
	c := &Checker{pingers: map[string]Pinger{}, policy: policy}
	for name, p := range pingers {
		if p != nil {
			c.pingers[name] = p
		}
	}
	return c
}

// Ready returns nil when every dependency answers, otherwise all failures combined.
func (c *Checker) Ready(ctx context.Context) error {
	var errs error
	for name, p := range c.pingers {
		pctx, cancel := context.WithTimeout(ctx, checkTimeout)
		if err := p.PingContext(pctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
		cancel()
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("policy: %w", err))
		}
	}
	return errs
}

type statusBody struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Live answers liveness probes; it never checks dependencies.
func (c *Checker) Live(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, statusBody{Status: "ok"})
}

// ReadyHandler answers readiness probes with 503 when a dependency is down.
func (c *Checker) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if err := c.Ready(r.Context()); err != nil {
		writeStatus(w, http.StatusServiceUnavailable, statusBody{Status: "unavailable", Error: err.Error()})
		return
	}
	writeStatus(w, http.StatusOK, statusBody{Status: "ok"})
}

func writeStatus(w http.ResponseWriter, status int, body statusBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
