package middleware

import (
	"net"
	"net/http"

	"corrade/internal/ratelimit"
)

type RateLimiter struct {
	limiter *ratelimit.Keyed
}

func NewRateLimiter(limiter *ratelimit.Keyed) *RateLimiter {
	return &RateLimiter{limiter: limiter}
}

// Middleware rejects clients over their budget, keyed by remote host.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter.Allow(RemoteHost(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RemoteHost is the client address without its port, or "" when the
// request carries none.
func RemoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
