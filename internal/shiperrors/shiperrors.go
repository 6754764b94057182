// Package shiperrors provides structured error types for the shipproxy link
// protocol, in the spirit of go-rawhttp's pkg/errors: a single typed error
// carrying an operation, a cause, and enough context to log without string
// grepping.
package shiperrors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies the error per the ship-proxy error taxonomy.
type Kind string

const (
	// KindLinkUnavailable means the client could not dial the offshore
	// server after exhausting its retry budget.
	KindLinkUnavailable Kind = "link_unavailable"
	// KindProtocolError means an unexpected frame type or malformed JSON
	// was observed on the link; the link must be reset.
	KindProtocolError Kind = "protocol_error"
	// KindUpstreamError means the server's fetch of the origin URL failed
	// (timeout or transport failure).
	KindUpstreamError Kind = "upstream_error"
	// KindTunnelOpenFailed means the server could not reach the CONNECT
	// target; the link itself remains usable.
	KindTunnelOpenFailed Kind = "tunnel_open_failed"
	// KindClientDisconnected means the browser went away mid-response;
	// not a failure requiring a 502.
	KindClientDisconnected Kind = "client_disconnected"
	// KindQueueFull means the bounded client job queue rejected an
	// enqueue attempt.
	KindQueueFull Kind = "queue_full"
)

// Error is a structured, wrapped error carrying a Kind, the operation that
// failed, and an optional cause.
type Error struct {
	Kind      Kind
	Op        string
	Message   string
	Cause     error
	Timestamp time.Time
}

// Error implements the error interface.
// Format: [kind] op: message: cause
func (e *Error) Error() string {
	s := fmt.Sprintf("[%s]", e.Kind)
	if e.Op != "" {
		s += " " + e.Op
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause, Timestamp: time.Now()}
}

// NewLinkUnavailable wraps a dial failure after the retry budget is spent.
func NewLinkUnavailable(addr string, cause error) *Error {
	return newErr(KindLinkUnavailable, "dial", fmt.Sprintf("connect offshore %s failed", addr), cause)
}

// NewProtocolError wraps an unexpected frame type or malformed payload.
func NewProtocolError(op, message string, cause error) *Error {
	return newErr(KindProtocolError, op, message, cause)
}

// NewUpstreamError wraps an origin fetch failure.
func NewUpstreamError(cause error) *Error {
	return newErr(KindUpstreamError, "upstream_request", "upstream fetch failed", cause)
}

// NewTunnelOpenFailed wraps a server-reported CONNECT failure.
func NewTunnelOpenFailed(message string) *Error {
	return newErr(KindTunnelOpenFailed, "connect_open", message, nil)
}

// NewClientDisconnected marks a best-effort-drain scenario, not a 502.
func NewClientDisconnected(op string, cause error) *Error {
	return newErr(KindClientDisconnected, op, "browser disconnected", cause)
}

// NewQueueFull wraps a bounded-queue rejection.
func NewQueueFull() *Error {
	return newErr(KindQueueFull, "enqueue", "job queue is full", nil)
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, or "" if not.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
