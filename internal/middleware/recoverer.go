package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/planmate-app/backend/internal/api/response"
)

// Recoverer converts a handler panic into a 500 response. The stack trace
// goes to the log under the request id, never to the client.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[%s] panic: %v\n%s", GetRequestID(r.Context()), rec, debug.Stack())
				response.InternalError(w, "unexpected server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
