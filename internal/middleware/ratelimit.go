package middleware

import (
	"log"
	"net/http"
	"strconv"

	"github.com/planmate-app/backend/internal/api/response"
	"github.com/planmate-app/backend/internal/ratelimit"
)

// RateLimit creates a middleware that limits requests by client IP using
// the Redis-backed sliding window limiter. On limiter failure the request
// is allowed through: a Redis outage must not take the API down with it.
func RateLimit(limiter *ratelimit.Limiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)

			allowed, remaining, err := limiter.Allow(r.Context(), ip)
			if err != nil {
				log.Printf("[ratelimit] Limiter error for %s: %v", ip, err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				w.Header().Set("Retry-After", "60")
				response.TooManyRequests(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first (for proxies)
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		// Take the first IP in the chain
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}

	// Check X-Real-IP header
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return xri
	}

	// Fall back to RemoteAddr, which is in the form "IP:port"
	addr := r.RemoteAddr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
		if addr[i] == ']' {
			// IPv6 address
			break
		}
	}
	return addr
}
