package engine

import "context"

// RouteInput is what a route policy decision is based on.
type RouteInput struct {
	Path   string
	Method string
	Role   string
}

// Evaluator decides whether an authenticated caller's role may access a route.
type Evaluator interface {
	Allow(ctx context.Context, in RouteInput) (bool, error)
}
