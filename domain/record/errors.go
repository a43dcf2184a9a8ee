package record

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups that target a single missing record.
// Batch lookups omit missing ids instead.
var ErrNotFound = errors.New("record not found")

// StorageError reports a store operation that failed after its retries.
type StorageError struct {
	operation string
	attempts  int
	cause     error
}

// NewStorageError creates a StorageError.
func NewStorageError(operation string, attempts int, cause error) *StorageError {
	return &StorageError{operation: operation, attempts: attempts, cause: cause}
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed after %d attempt(s): %v", e.operation, e.attempts, e.cause)
}

// Unwrap returns the last cause.
func (e *StorageError) Unwrap() error { return e.cause }

// Operation returns the failed operation name.
func (e *StorageError) Operation() string { return e.operation }

// Attempts returns how many attempts were made.
func (e *StorageError) Attempts() int { return e.attempts }

// ValidationError reports a vector whose length differs from the index dimension.
type ValidationError struct {
	id       string
	expected int
	actual   int
}

// NewValidationError creates a ValidationError.
func NewValidationError(id string, expected, actual int) *ValidationError {
	return &ValidationError{id: id, expected: expected, actual: actual}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.id == "" {
		return fmt.Sprintf("vector has %d dimensions, index expects %d", e.actual, e.expected)
	}
	return fmt.Sprintf("record %s: vector has %d dimensions, index expects %d", e.id, e.actual, e.expected)
}

// ID returns the offending record id, if any.
func (e *ValidationError) ID() string { return e.id }

// Expected returns the configured dimension.
func (e *ValidationError) Expected() int { return e.expected }

// Actual returns the received dimension.
func (e *ValidationError) Actual() int { return e.actual }
