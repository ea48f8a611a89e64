package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSWithOrigins returns a CORS middleware for the Mini App origins. The
// webview sends no cookies; identity rides in the request body.
func CORSWithOrigins(origins []string) func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}
