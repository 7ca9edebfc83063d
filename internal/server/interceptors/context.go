package interceptors

import (
	"context"

	sessiondomain "coliving-platform/backend/internal/session/domain"
)

type contextKey struct{ name string }

var (
	sessionKey  = contextKey{"session"}
	clientIPKey = contextKey{"client_ip"}
)

// WithSession returns a context carrying the verified session token.
// Handlers behind the route guard read it via SessionFrom.
func WithSession(ctx context.Context, tok sessiondomain.Token) context.Context {
	return context.WithValue(ctx, sessionKey, tok)
}

// SessionFrom returns the verified session token and true if set; otherwise a zero token, false.
func SessionFrom(ctx context.Context) (sessiondomain.Token, bool) {
	v, ok := ctx.Value(sessionKey).(sessiondomain.Token)
	return v, ok
}

// WithClientIP returns a context with the client IP set.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the client IP stored by ClientAddr, or "" if unset.
func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}
