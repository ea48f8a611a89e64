package response

import (
	"encoding/json"
	"net/http"
)

// Machine-readable error codes surfaced to clients
const (
	CodeBadRequest   = "bad_request"
	CodeNoPlansLeft  = "no_plans_left"
	CodeNoMediaLeft  = "no_media_left"
	CodeUpstream     = "upstream_error"
	CodeServerError  = "server_error"
	CodeForbidden    = "forbidden"
	CodeRateLimited  = "rate_limit_exceeded"
)

// ErrorBody is the standard error response shape. Detail carries diagnostic
// context outside production; Extra merges endpoint-specific fields (quota
// countdowns and the like) into the top level.
type ErrorBody struct {
	Error  string         `json:"error"`
	Detail string         `json:"detail,omitempty"`
	Extra  map[string]any `json:"-"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Log error but don't try to write again
			return
		}
	}
}

// Error writes an error response with a machine-readable code
func Error(w http.ResponseWriter, status int, code string) {
	JSON(w, status, ErrorBody{Error: code})
}

// ErrorDetail writes an error response with diagnostic detail
func ErrorDetail(w http.ResponseWriter, status int, code, detail string) {
	JSON(w, status, ErrorBody{Error: code, Detail: detail})
}

// ErrorExtra writes an error response with endpoint-specific fields merged
// into the top-level object.
func ErrorExtra(w http.ResponseWriter, status int, code string, extra map[string]any) {
	body := map[string]any{"error": code}
	for k, v := range extra {
		body[k] = v
	}
	JSON(w, status, body)
}

// BadRequest writes a 400 bad request response
func BadRequest(w http.ResponseWriter, detail string) {
	if detail == "" {
		Error(w, http.StatusBadRequest, CodeBadRequest)
		return
	}
	ErrorDetail(w, http.StatusBadRequest, CodeBadRequest, detail)
}

// InternalError writes a 500 internal server error response. Raw error text
// never leaks here; the caller passes detail only outside production.
func InternalError(w http.ResponseWriter, detail string) {
	if detail == "" {
		Error(w, http.StatusInternalServerError, CodeServerError)
		return
	}
	ErrorDetail(w, http.StatusInternalServerError, CodeServerError, detail)
}

// UpstreamError writes a 502 bad gateway response for failed collaborators
func UpstreamError(w http.ResponseWriter, detail string) {
	if detail == "" {
		Error(w, http.StatusBadGateway, CodeUpstream)
		return
	}
	ErrorDetail(w, http.StatusBadGateway, CodeUpstream, detail)
}

// Forbidden writes a 403 forbidden response
func Forbidden(w http.ResponseWriter) {
	Error(w, http.StatusForbidden, CodeForbidden)
}

// TooManyRequests writes a 429 rate limit exceeded response
func TooManyRequests(w http.ResponseWriter) {
	Error(w, http.StatusTooManyRequests, CodeRateLimited)
}
