// Package errors defines the unified error vocabulary for the ExLLM
// runtime. Every plug, decoder, and middleware reports failures as an
// *Error with one of the Kind values below instead of ad-hoc sentinel
// errors, so pipeline halts, retries, and telemetry all classify a
// failure the same way.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for routing, retry, and telemetry purposes.
// These are the error kinds named by the runtime's error handling design:
// validation and configuration errors halt the pipeline with no I/O,
// transport/http errors pass through retry first, circuit_open is
// non-retriable by design, and so on.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConfiguration Kind = "configuration"
	KindTransport     Kind = "transport"
	KindHTTP          Kind = "http"
	KindProtocol      Kind = "protocol"
	KindProvider      Kind = "provider"
	KindCircuitOpen   Kind = "circuit_open"
	KindBackpressure  Kind = "backpressure"
	KindCancelled     Kind = "cancelled"
	KindNotFound      Kind = "not_found"
	KindException     Kind = "exception"
)

// Error is the standardized error value produced anywhere in the runtime.
type Error struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
	Provider   string `json:"provider,omitempty"`
	Model      string `json:"model,omitempty"`
	Plug       string `json:"plug,omitempty"`
	Retryable  bool   `json:"-"`
	RetryAfter int    `json:"retry_after,omitempty"` // seconds; meaningful for KindCircuitOpen

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s (provider=%s, model=%s)", e.Kind, e.Message, e.Provider, e.Model)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// HTTPStatusCode returns the best-guess HTTP status for this error.
func (e *Error) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConfiguration:
		return http.StatusUnauthorized
	case KindCircuitOpen, KindBackpressure:
		return http.StatusServiceUnavailable
	case KindNotFound:
		return http.StatusNotFound
	case KindCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// New builds a classified Error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a classified Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a classified Error that retains the original cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithPlug attaches the originating plug name.
func (e *Error) WithPlug(plug string) *Error {
	e.Plug = plug
	return e
}

// WithProvider attaches provider/model context.
func (e *Error) WithProvider(provider, model string) *Error {
	e.Provider = provider
	e.Model = model
	return e
}

// WithStatus attaches an HTTP status code.
func (e *Error) WithStatus(code int) *Error {
	e.StatusCode = code
	return e
}

// WithRetryable marks whether the error is safe to retry.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithRetryAfter attaches a suggested retry-after hint in seconds.
func (e *Error) WithRetryAfter(seconds int) *Error {
	e.RetryAfter = seconds
	return e
}

// As reports whether err (or something it wraps) is an *Error, assigning
// it to target on success. Thin wrapper over errors.As so call sites don't
// need to import both "errors" packages under aliases.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}

// IsRetryable reports whether err should be treated as retriable.
// Non-*Error values are never retriable.
func IsRetryable(err error) bool {
	var e *Error
	if !As(err, &e) {
		return false
	}
	return e.Retryable
}

// rateLimitHints are substrings that, when found in a 401 response body,
// reclassify it as a rate-limit failure rather than a genuine auth
// failure (§4.11). Checked case-insensitively by the caller.
var rateLimitHints = []string{
	"rate limit",
	"too many requests",
	"quota exceeded",
	"retry after",
	"throttle",
}

// RateLimitHints exposes the phrase list used to reclassify a 401 body as
// a rate-limit failure instead of a genuine authentication failure.
func RateLimitHints() []string {
	out := make([]string, len(rateLimitHints))
	copy(out, rateLimitHints)
	return out
}
