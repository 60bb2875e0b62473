package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies a provider failure. Kinds are part of the public
// contract: callers branch on them to decide whether to retry, re-auth, or
// surface the failure, and the stream's terminal error event carries one.
type ErrorKind string

const (
	ErrInvalidAPIKey   ErrorKind = "invalid_api_key"
	ErrUnauthorized    ErrorKind = "unauthorized"
	ErrTokenExpired    ErrorKind = "token_expired"
	ErrRateLimited     ErrorKind = "rate_limited"
	ErrNetwork         ErrorKind = "network"
	ErrTimeout         ErrorKind = "timeout"
	ErrServer          ErrorKind = "server"
	ErrCancelled       ErrorKind = "cancelled"
	ErrInvalidResponse ErrorKind = "invalid_response"
	ErrModelNotFound   ErrorKind = "model_not_found"
	ErrNotSupported    ErrorKind = "not_supported"
	ErrProvider        ErrorKind = "provider"
)

// Retryable reports whether a failure of this kind is worth retrying.
// Retry itself is always a caller decision; adapters never retry internally.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrRateLimited, ErrTimeout, ErrServer, ErrNetwork:
		return true
	}
	return false
}

// Error is the typed provider error used throughout the module. It wraps an
// optional cause so callers can use errors.Is / errors.As on the root error,
// and carries transport metadata where the kind implies it (HTTP status for
// server errors, Retry-After for rate limits).
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int            // Non-zero for HTTP-derived errors
	RetryAfter *time.Duration // Set when the backend sent a Retry-After hint
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil && e.Message == "" {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the error's kind is retryable.
func (e *Error) Retryable() bool { return e.Kind.Retryable() }

// NewError builds a typed provider error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError attaches a kind to an underlying cause.
func WrapError(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// KindOf extracts the ErrorKind from err, unwrapping as needed. Errors that
// are not provider errors report ErrProvider, except for context
// cancellation/deadline which map to their dedicated kinds so transport-level
// aborts keep their meaning wherever they surface.
func KindOf(err error) ErrorKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrProvider
}

// ErrorFromStatus maps an HTTP error status to the taxonomy. The body is
// truncated into the message so operators see what the backend actually said.
// 401 maps to unauthorized; adapters that can tell an expired OAuth token from
// a bad key refine the kind themselves.
func ErrorFromStatus(resp *http.Response, body string) *Error {
	const bodyPreview = 300
	if len(body) > bodyPreview {
		body = body[:bodyPreview]
	}

	e := &Error{Message: strings.TrimSpace(body), StatusCode: resp.StatusCode}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		e.Kind = ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		e.Kind = ErrInvalidAPIKey
	case resp.StatusCode == http.StatusNotFound:
		// Chat endpoints return 404 both for bad paths and unknown models;
		// backends that distinguish put "model" in the body.
		if strings.Contains(strings.ToLower(body), "model") {
			e.Kind = ErrModelNotFound
		} else {
			e.Kind = ErrProvider
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Kind = ErrRateLimited
		if retryAfter := parseRetryAfter(resp.Header.Get("Retry-After")); retryAfter > 0 {
			e.RetryAfter = &retryAfter
		}
	case resp.StatusCode >= 500:
		e.Kind = ErrServer
	default:
		e.Kind = ErrProvider
	}
	return e
}

// ErrorFromTransport maps a connection-level failure to the taxonomy.
// Context cancellation takes priority over the generic network kind so a
// caller-initiated abort never masquerades as a connectivity problem.
func ErrorFromTransport(err error) *Error {
	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Kind: ErrCancelled, Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: ErrTimeout, Cause: err}
	default:
		return &Error{Kind: ErrNetwork, Cause: err}
	}
}

// ClassifyHTTP converts a request-helper failure into the typed taxonomy:
// the response status when an HTTP response exists, transport classification
// otherwise. The helper embeds the response body in err, which becomes the
// message for status-derived errors.
func ClassifyHTTP(resp *http.Response, err error) *Error {
	if resp != nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return ErrorFromStatus(resp, err.Error())
	}
	return ErrorFromTransport(err)
}

// parseRetryAfter handles the delta-seconds form of Retry-After. The HTTP-date
// form is rare on LLM APIs and is ignored rather than guessed at.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
