package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrUnauthorized indicates the access token was rejected.
	ErrUnauthorized = errors.New("api: unauthorized")
	// ErrForbidden indicates the user lacks permission for the resource.
	ErrForbidden = errors.New("api: forbidden")
	// ErrNotFound indicates the resource does not exist.
	ErrNotFound = errors.New("api: not found")
	// ErrRateLimited indicates the backend throttled the request.
	ErrRateLimited = errors.New("api: rate limited")
	// ErrSessionExpired indicates the token refresh failed and the stored
	// session was cleared.
	ErrSessionExpired = errors.New("api: session expired, please log in again")
	// ErrNoSession indicates there are no stored credentials.
	ErrNoSession = errors.New("api: not logged in")
)

// StatusError is a non-2xx response. Well-known codes unwrap to the matching
// sentinel, so errors.Is(err, ErrNotFound) works through it.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("api: status %d: %s", e.Code, msg)
	}
	return fmt.Sprintf("api: unexpected status %d", e.Code)
}

// Unwrap returns the sentinel for the status code, if any.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

// Message extracts a human readable message from a JSON error body
// ({"detail": ...}, {"error": ...} or field errors), falling back to the
// trimmed raw body.
func (e *StatusError) Message() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return ""
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &obj); err == nil {
		for _, key := range []string{"detail", "error", "message"} {
			var s string
			if raw, ok := obj[key]; ok && json.Unmarshal(raw, &s) == nil && s != "" {
				return s
			}
		}
		var parts []string
		for field, raw := range obj {
			var msgs []string
			if json.Unmarshal(raw, &msgs) == nil && len(msgs) > 0 {
				parts = append(parts, field+": "+strings.Join(msgs, " "))
			}
		}
		if len(parts) > 0 {
			sort.Strings(parts)
			return strings.Join(parts, "; ")
		}
	}
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return body
}

// ValidationError is returned before any request is made when the input is
// rejected client side.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "api: invalid input: " + e.Message
	}
	return fmt.Sprintf("api: invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func checkStatus(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	return &StatusError{Code: code, Body: string(body)}
}
