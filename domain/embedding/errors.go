package embedding

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoEnabledBackends is returned when orchestration has nothing to call.
	ErrNoEnabledBackends = errors.New("no enabled embedding backends")

	// ErrAllBackendsFailed is returned when every backend tried for a batch failed.
	ErrAllBackendsFailed = errors.New("all embedding backends failed")

	// ErrRateLimited may be returned or wrapped by backends that detect rate limiting themselves.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidResponse is returned when a backend answers with the wrong number of vectors.
	ErrInvalidResponse = errors.New("invalid backend response")
)

// ConfigurationError reports orchestration that cannot run as configured.
type ConfigurationError struct {
	cause error
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(cause error) *ConfigurationError {
	return &ConfigurationError{cause: cause}
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return "embedding configuration: " + e.cause.Error()
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error { return e.cause }

// BackendInvocationError reports a backend call that failed after retries.
type BackendInvocationError struct {
	backend  string
	attempts int
	cause    error
}

// NewBackendInvocationError creates a BackendInvocationError.
func NewBackendInvocationError(backend string, attempts int, cause error) *BackendInvocationError {
	return &BackendInvocationError{backend: backend, attempts: attempts, cause: cause}
}

// Error implements the error interface.
func (e *BackendInvocationError) Error() string {
	return fmt.Sprintf("backend %s failed after %d attempt(s): %v", e.backend, e.attempts, e.cause)
}

// Unwrap returns the underlying cause.
func (e *BackendInvocationError) Unwrap() error { return e.cause }

// Backend returns the backend name.
func (e *BackendInvocationError) Backend() string { return e.backend }

// Attempts returns how many calls were made.
func (e *BackendInvocationError) Attempts() int { return e.attempts }

// IsRateLimit reports whether err signals rate limiting: an HTTP 429 status
// anywhere in the chain, ErrRateLimited, or a message mentioning a quota or
// rate limit.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) && coded.StatusCode() == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit")
}
