package backend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Failure classes of a backend call. Every HTTP error response is an *APIError
// whose Unwrap returns one of these.
var (
	// ErrUnreachable means no response reached us: connection refused, timeout, or the breaker is open.
	ErrUnreachable = errors.New("server unreachable")
	// ErrValidation is a 4xx rejection; the APIError message is meant for the user.
	ErrValidation   = errors.New("request rejected by server")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	// ErrServer is a 5xx fault.
	ErrServer = errors.New("server error")
)

// maxMessageLen bounds messages copied from plain-text error bodies.
const maxMessageLen = 500

// APIError is an HTTP error response from the backend.
type APIError struct {
	Status  int
	Message string
	Kind    error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// classify turns a non-2xx response into an *APIError.
func classify(status int, body []byte) *APIError {
	e := &APIError{Status: status, Message: extractMessage(body)}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = ErrUnauthorized
	case status == http.StatusNotFound:
		e.Kind = ErrNotFound
	case status >= 500:
		e.Kind = ErrServer
	default:
		e.Kind = ErrValidation
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// extractMessage reads mensaje, message or error from a JSON body, or
// falls back to the trimmed body text.
func extractMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, key := range []string{"mensaje", "message", "error"} {
			if v, ok := fields[key].(string); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}
	var text string
	if err := json.Unmarshal(body, &text); err == nil {
		trimmed = strings.TrimSpace(text)
	}
	if strings.HasPrefix(trimmed, "<") {
		// an HTML error page says nothing useful to a shopper
		return ""
	}
	if len(trimmed) > maxMessageLen {
		trimmed = trimmed[:maxMessageLen]
	}
	return trimmed
}

// IsTransient reports whether err may succeed on a later attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrServer)
}
