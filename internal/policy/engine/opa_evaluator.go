package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const allowQuery = "data.coliving.routes.allow"

// DefaultRoutePolicy restricts the role dashboards. Every other route is open to any signed-in role.
const DefaultRoutePolicy = `package coliving.routes

required_roles := {
	"/dashboard/admin": {"admin"},
	"/dashboard/owner": {"owner", "admin"},
	"/api/admin": {"admin"},
}

default allow := false

allow if count(denied) == 0

denied contains prefix if {
	some prefix, roles in required_roles
	within(input.path, prefix)
	not roles[input.role]
}

within(path, prefix) if path == prefix

within(path, prefix) if startswith(path, concat("", [prefix, "/"]))
`

// OPAEvaluator evaluates route role policies with OPA Rego. The policy is compiled once.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy, or DefaultRoutePolicy when policy is empty. The policy must
// define data.coliving.routes.allow.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultRoutePolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"routes.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile route policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(allowQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare route policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// LoadPolicyFile reads a Rego policy from path. An empty path returns "".
func LoadPolicyFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read route policy: %w", err)
	}
	return string(b), nil
}

// Allow evaluates the policy for in. Evaluation errors and undefined results deny.
func (e *OPAEvaluator) Allow(ctx context.Context, in RouteInput) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"path":   in.Path,
		"method": in.Method,
		"role":   in.Role,
	}))
	if err != nil {
		return false, fmt.Errorf("eval route policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("route policy returned no result")
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("route policy returned %T, want bool", rs[0].Expressions[0].Value)
	}
	return allowed, nil
}

// HealthCheck evaluates the compiled policy against a fixed input.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.Allow(ctx, RouteInput{Path: "/dashboard", Method: "GET", Role: "user"})
	return err
}
