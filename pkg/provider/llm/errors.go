package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies a provider failure by whether retrying can help.
type ErrorKind int

const (
	// Transient failures (rate limits, timeouts, temporary unavailability)
	// may succeed when the same request is sent again.
	Transient ErrorKind = iota

	// Permanent failures (authentication, malformed requests, unsupported
	// models) will fail the same way on every retry.
	Permanent
)

// String returns the human-readable name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ServiceError is a classified provider failure.
type ServiceError struct {
	// Kind decides the retry policy.
	Kind ErrorKind

	// StatusCode is the HTTP status reported by the backend, or 0 when the
	// failure happened before a response arrived.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error implements error.
func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm: %s service error (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm: %s service error: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error { return e.Err }

// Temporary reports whether the failure is worth retrying.
func (e *ServiceError) Temporary() bool { return e.Kind == Transient }

// NewTransient wraps err as a transient [ServiceError].
func NewTransient(err error) *ServiceError {
	return &ServiceError{Kind: Transient, Err: err}
}

// NewPermanent wraps err as a permanent [ServiceError].
func NewPermanent(err error) *ServiceError {
	return &ServiceError{Kind: Permanent, Err: err}
}

// StatusError wraps err with the HTTP status code reported by a backend and
// classifies it by that code.
func StatusError(status int, err error) *ServiceError {
	return &ServiceError{Kind: KindForStatus(status), StatusCode: status, Err: err}
}

// KindForStatus maps an HTTP status code to an [ErrorKind].
//
// Request timeouts, conflicts, rate limits and server errors are transient;
// every other 4xx is permanent. Codes outside 4xx/5xx are treated as transient
// because the response was unexpected rather than a rejection.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == 408, status == 409, status == 425, status == 429:
		return Transient
	case status >= 500:
		return Transient
	case status >= 400:
		return Permanent
	default:
		return Transient
	}
}

// permanentMarkers are lower-case substrings in error text that identify
// failures no retry can fix. Used when a backend does not expose a typed
// status code.
var permanentMarkers = []string{
	"401", "unauthorized", "invalid api key", "invalid_api_key", "authentication",
	"403", "forbidden", "permission denied",
	"404", "model not found", "model_not_found", "does not exist", "unsupported model",
	"400 bad request", "invalid_request_error", "422",
	"must not be empty", "unsupported provider",
}

// Classify converts any provider error into a [ServiceError]. A nil error
// yields nil. Errors that already carry a classification are returned
// unchanged; otherwise typed signals are consulted first (context deadline,
// net.Error timeouts), then well-known markers in the error text. Anything
// unrecognised is classified [Transient]: the retry bound keeps that safe.
//
// Context cancellation is classified [Permanent]: the caller gave up, so
// retrying the same call cannot succeed.
func Classify(err error) *ServiceError {
	if err == nil {
		return nil
	}

	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}

	if errors.Is(err, context.Canceled) {
		return NewPermanent(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransient(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTransient(err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return NewPermanent(err)
		}
	}
	return NewTransient(err)
}

// IsTransient reports whether err classifies as a transient failure.
func IsTransient(err error) bool {
	se := Classify(err)
	return se != nil && se.Kind == Transient
}
