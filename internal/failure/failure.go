// Package failure defines the classified errors shared by the adapters,
// the retry policy and the workflow engine.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Kind classifies a single external call failure and decides retry eligibility.
type Kind string

const (
	Transient        Kind = "transient"
	RateLimited      Kind = "rate_limited"
	ValidationFailed Kind = "validation_failed"
	Fatal            Kind = "fatal"
)

// CallError is returned by the model, search and fetch adapters.
type CallError struct {
	Kind Kind
	Op   string

	// RetryAfter is the cool-down requested by the remote side, zero if none.
	RetryAfter time.Duration

	// Violations lists field-level schema problems for ValidationFailed.
	Violations []string

	Err error
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if len(e.Violations) > 0 {
		msg += " (" + strings.Join(e.Violations, "; ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CallError) Unwrap() error { return e.Err }

// NewCallError builds a CallError of the given kind.
func NewCallError(kind Kind, op string, err error) *CallError {
	return &CallError{Kind: kind, Op: op, Err: err}
}

// KindOf reports the classification of err. Unclassified errors are treated
// as transient when they look like network or timeout errors, fatal otherwise.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}
	return Fatal
}

// FromStatus classifies an HTTP response status. The retryAfter header value
// is honoured for 429 and 503 responses.
func FromStatus(op string, status int, retryAfter string, body string) *CallError {
	err := fmt.Errorf("status %d: %s", status, truncate(body, 200))
	switch {
	case status == http.StatusTooManyRequests:
		return &CallError{Kind: RateLimited, Op: op, RetryAfter: ParseRetryAfter(retryAfter), Err: err}
	case status == http.StatusRequestTimeout || status >= 500:
		ce := &CallError{Kind: Transient, Op: op, Err: err}
		if status == http.StatusServiceUnavailable {
			ce.RetryAfter = ParseRetryAfter(retryAfter)
		}
		return ce
	default:
		return &CallError{Kind: Fatal, Op: op, Err: err}
	}
}

// FromTransport classifies an error returned by http.Client.Do.
func FromTransport(op string, err error) *CallError {
	if errors.Is(err, context.Canceled) {
		return &CallError{Kind: Fatal, Op: op, Err: err}
	}
	return &CallError{Kind: Transient, Op: op, Err: err}
}

// ParseRetryAfter reads a Retry-After header expressed in seconds or as an HTTP date.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
