package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/codestore/domain/record"
	"github.com/helixml/codestore/domain/tracking"
)

type attemptRecorder struct {
	tracking.NopObserver
	mu       sync.Mutex
	attempts []tracking.StorageAttempt
}

func (o *attemptRecorder) OnStorageAttempt(_ context.Context, e tracking.StorageAttempt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, e)
}

func TestRetryPolicy_Defaults(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, DefaultRetryAttempts, p.Attempts())
	assert.Equal(t, 1, NewRetryPolicy(0, 0).Attempts())
}

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	p := NewRetryPolicy(3, time.Millisecond)
	calls := 0
	err := p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_ExhaustedBecomesStorageError(t *testing.T) {
	obs := &attemptRecorder{}
	p := NewRetryPolicy(3, time.Millisecond)
	p.observer = obs
	cause := errors.New("connection reset")

	err := p.Do(context.Background(), "bulk_upsert", func(context.Context) error { return cause })
	require.Error(t, err)

	var storageErr *record.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "bulk_upsert", storageErr.Operation())
	assert.Equal(t, 3, storageErr.Attempts())
	assert.ErrorIs(t, err, cause)

	require.Len(t, obs.attempts, 3)
	assert.Equal(t, 3, obs.attempts[2].Attempt)
}

func TestRetryPolicy_ValidationNotRetried(t *testing.T) {
	p := NewRetryPolicy(3, time.Millisecond)
	calls := 0
	err := p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return record.NewValidationError("id", 3, 2)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var validation *record.ValidationError
	assert.True(t, errors.As(err, &validation))
	var storageErr *record.StorageError
	assert.False(t, errors.As(err, &storageErr))
}

func TestRetryPolicy_CancellationNotRetried(t *testing.T) {
	p := NewRetryPolicy(3, time.Millisecond)
	calls := 0
	err := p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return context.Canceled
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}
