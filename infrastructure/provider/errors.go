// Package provider implements embedding backends: an OpenAI-compatible HTTP
// backend, a local ONNX backend, and an LRU caching decorator.
package provider

import (
	"errors"
	"net/http"
)

// ErrUnknownBackendType indicates a backend spec names an unsupported type.
var ErrUnknownBackendType = errors.New("unknown backend type")

// errEmbeddingCountMismatch indicates the API returned a different number of
// vectors than texts sent.
var errEmbeddingCountMismatch = errors.New("embedding response count mismatch")

// errUpstreamProviderFailure indicates the API answered 200 with an empty
// body: no data, no model and zero usage. Routing providers do this when
// every upstream they front is down.
var errUpstreamProviderFailure = errors.New("upstream provider failure")

// ProviderError wraps backend errors with the HTTP status when one is known.
type ProviderError struct {
	operation  string
	statusCode int
	message    string
	cause      error
}

// NewProviderError creates a new ProviderError.
func NewProviderError(operation string, statusCode int, message string, cause error) *ProviderError {
	return &ProviderError{
		operation:  operation,
		statusCode: statusCode,
		message:    message,
		cause:      cause,
	}
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.cause != nil && e.cause.Error() != e.message {
		return e.operation + ": " + e.message + ": " + e.cause.Error()
	}
	return e.operation + ": " + e.message
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error { return e.cause }

// Operation returns the operation that failed.
func (e *ProviderError) Operation() string { return e.operation }

// StatusCode returns the HTTP status code, or zero when unknown.
func (e *ProviderError) StatusCode() int { return e.statusCode }

// Message returns the error message.
func (e *ProviderError) Message() string { return e.message }

// IsRateLimited reports whether the backend answered 429.
func (e *ProviderError) IsRateLimited() bool {
	return e.statusCode == http.StatusTooManyRequests
}
