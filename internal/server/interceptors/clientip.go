package interceptors

import (
	"net"
	"net/http"
)

// ClientAddr stores the request's client IP in the context. Mount it after chi's middleware.RealIP
// so X-Forwarded-For and X-Real-IP are already folded into RemoteAddr.
func ClientAddr(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		if ip == "" {
			ip = "unknown"
		}
		next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
	})
}
