package middleware

import (
	"log"
	"net/http"
	"time"
)

// statusWriter captures the status code and body size for the access log
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += n
	return n, err
}

// Logger writes one access-log line per request, tagged with the request id
// so the line can be correlated with handler errors.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		log.Printf("[%s] %s %s -> %d (%dB in %s)",
			GetRequestID(r.Context()),
			r.Method,
			r.URL.Path,
			sw.status,
			sw.bytes,
			time.Since(start),
		)
	})
}
