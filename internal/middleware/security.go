package middleware

import "net/http"

// SecurityHeaders hardens API responses. The service only ever serves JSON
// to the Mini App webview, so framing is denied outright and responses are
// marked uncacheable: quota counters and entitlements must never be served
// stale by an intermediary.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}
