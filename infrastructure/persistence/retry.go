package persistence

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/helixml/codestore/domain/record"
	"github.com/helixml/codestore/domain/tracking"
)

// Store retry defaults.
const (
	DefaultRetryAttempts  = 3
	DefaultRetryBaseDelay = 100 * time.Millisecond
)

// RetryPolicy re-runs failed store operations with exponential backoff.
type RetryPolicy struct {
	attempts int
	base     time.Duration
	observer tracking.Observer
	logger   *slog.Logger
}

// NewRetryPolicy creates a RetryPolicy. Attempts below 1 become 1 and a
// non-positive base delay becomes the default.
func NewRetryPolicy(attempts int, base time.Duration) RetryPolicy {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = DefaultRetryBaseDelay
	}
	return RetryPolicy{
		attempts: attempts,
		base:     base,
		observer: tracking.NopObserver{},
		logger:   slog.Default(),
	}
}

// DefaultRetryPolicy returns 3 attempts starting at 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy(DefaultRetryAttempts, DefaultRetryBaseDelay)
}

// Attempts returns the maximum number of attempts.
func (p RetryPolicy) Attempts() int { return p.attempts }

// Do runs fn until it succeeds or attempts run out. Validation errors and
// cancellation are not retried. Failures surface as *record.StorageError,
// except validation errors which are returned as they are.
func (p RetryPolicy) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(p.attempts-1), retry.NewExponential(p.base))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		p.observer.OnStorageAttempt(ctx, tracking.StorageAttempt{
			Operation: operation,
			Attempt:   attempt,
			Err:       err,
		})
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		p.logger.DebugContext(ctx, "storage operation failed",
			slog.String("operation", operation),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}

	var validation *record.ValidationError
	if errors.As(err, &validation) {
		return err
	}
	return record.NewStorageError(operation, attempt, err)
}

func retryable(err error) bool {
	var validation *record.ValidationError
	switch {
	case errors.As(err, &validation):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}
