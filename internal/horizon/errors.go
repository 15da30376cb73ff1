package horizon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is a Horizon problem response (RFC 7807).
type Error struct {
	Status int    `json:"status"`
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("horizon %d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("horizon %d %s", e.Status, e.Title)
}

// StatusCode returns the HTTP status of the failed request.
func (e *Error) StatusCode() int { return e.Status }

// Retryable reports whether the request may succeed when repeated.
func (e *Error) Retryable() bool {
	return e.Status == http.StatusTooManyRequests ||
		e.Status == http.StatusRequestTimeout ||
		e.Status >= 500
}

// IsNotFound reports whether err is a Horizon 404.
func IsNotFound(err error) bool {
	var herr *Error
	return errors.As(err, &herr) && herr.Status == http.StatusNotFound
}

// newError builds an Error from a status code and an optional problem body.
func newError(status int, body []byte) *Error {
	e := &Error{}
	if len(body) > 0 {
		_ = json.Unmarshal(body, e)
	}
	if e.Status == 0 {
		e.Status = status
	}
	if e.Title == "" {
		e.Title = http.StatusText(status)
	}
	return e
}
