package client

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// NetworkError is returned when a request produced no HTTP response:
// connection refused, DNS failure, timeout or cancellation.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: network error: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPStatusError is returned when the backend answered with a 4xx or 5xx.
// Body holds the raw response body for the caller to classify.
type HTTPStatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Message extracts a human-readable message from the body. It understands
// {"error":{"message":...}} and {"detail":...} and falls back to the
// trimmed body text.
func (e *HTTPStatusError) Message() string {
	var body struct {
		Detail any `json:"detail"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(e.Body, &body); err == nil {
		if body.Error.Message != "" {
			return body.Error.Message
		}
		switch d := body.Detail.(type) {
		case string:
			return d
		case nil:
		default:
			if b, err := json.Marshal(d); err == nil {
				return string(b)
			}
		}
	}
	return truncateString(strings.TrimSpace(string(e.Body)), 500)
}

// ErrorCode returns the machine-readable code of an {"error":{"code":...}} body.
func (e *HTTPStatusError) ErrorCode() string {
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(e.Body, &body); err != nil {
		return ""
	}
	return body.Error.Code
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
