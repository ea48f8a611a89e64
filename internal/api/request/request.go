package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// MaxBodyBytes caps JSON request bodies
const MaxBodyBytes = 1 << 20 // 1 MiB

// DecodeJSON decodes a JSON request body into dst with a size cap and
// strict field checking.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}

	// Reject trailing garbage after the object
	if dec.More() {
		return errors.New("invalid JSON body: unexpected trailing data")
	}

	return nil
}

// ParseTime parses an RFC3339 timestamp, falling back to date-only format.
// Returns nil for an empty value.
func ParseTime(val string) *time.Time {
	if val == "" {
		return nil
	}

	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		t, err = time.Parse("2006-01-02", val)
		if err != nil {
			return nil
		}
	}

	return &t
}
