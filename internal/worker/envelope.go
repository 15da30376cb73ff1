package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Request is the envelope sent to the background side.
type Request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the envelope sent back for a Request with the same ID.
type Response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`
}

// RemoteError is an error or panic raised by the background handler.
type RemoteError struct {
	Method  string `json:"method"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"` // upstream HTTP status, if any
	Panic   bool   `json:"panic,omitempty"`
}

// StatusCode returns the upstream HTTP status, or 0.
func (e *RemoteError) StatusCode() int { return e.Status }

// IsNotFound reports whether err, local or remote, carries an upstream 404.
func IsNotFound(err error) bool {
	var sc interface{ StatusCode() int }
	return errors.As(err, &sc) && sc.StatusCode() == http.StatusNotFound
}

func (e *RemoteError) Error() string {
	if e.Panic {
		return fmt.Sprintf("worker %s: panic: %s", e.Method, e.Message)
	}
	return fmt.Sprintf("worker %s: %s", e.Method, e.Message)
}

// Signal is an out-of-band lifecycle token.
type Signal string

const (
	SignalPause  Signal = "app:pause"
	SignalResume Signal = "app:resume"
)

// ParseSignal maps a control token onto a known Signal.
func ParseSignal(token string) (Signal, bool) {
	switch Signal(token) {
	case SignalPause, SignalResume:
		return Signal(token), true
	default:
		return "", false
	}
}
