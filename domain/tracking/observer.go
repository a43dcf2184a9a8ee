// Package tracking defines the diagnostic events emitted by the embedding,
// storage and retrieval components, and the Observer that receives them.
package tracking

import (
	"context"
	"time"
)

// Outcome classifies a single backend attempt.
type Outcome string

// Outcome values.
const (
	OutcomeSuccess     Outcome = "success"
	OutcomeFailure     Outcome = "failure"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeTimeout     Outcome = "timeout"
)

// Invocation describes one attempt against one backend.
type Invocation struct {
	Backend  string
	Attempt  int
	Items    int
	Outcome  Outcome
	Duration time.Duration
	Err      error
}

// Rotation describes a credential switch after rate limiting.
type Rotation struct {
	Backend  string
	Attempt  int
	PoolSize int
}

// Generation summarises one orchestrated request.
type Generation struct {
	RequestID      string
	Strategy       string
	Items          int
	Succeeded      int
	Failed         int
	PrimaryBackend string
	FallbackUsed   bool
	Duration       time.Duration
}

// StorageAttempt describes one attempt of a store operation.
type StorageAttempt struct {
	Operation string
	Attempt   int
	Err       error
}

// RecordSkipped describes a record the store could not write.
type RecordSkipped struct {
	ID  string
	Err error
}

// Retrieval summarises one retrieval request.
type Retrieval struct {
	Candidates int
	Filtered   int
	Expanded   int
	Returned   int
	Duration   time.Duration
}

// Observer receives diagnostic events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	OnInvocation(ctx context.Context, e Invocation)
	OnRotation(ctx context.Context, e Rotation)
	OnGeneration(ctx context.Context, e Generation)
	OnStorageAttempt(ctx context.Context, e StorageAttempt)
	OnRecordSkipped(ctx context.Context, e RecordSkipped)
	OnRetrieval(ctx context.Context, e Retrieval)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) OnInvocation(context.Context, Invocation)         {}
func (NopObserver) OnRotation(context.Context, Rotation)             {}
func (NopObserver) OnGeneration(context.Context, Generation)         {}
func (NopObserver) OnStorageAttempt(context.Context, StorageAttempt) {}
func (NopObserver) OnRecordSkipped(context.Context, RecordSkipped)   {}
func (NopObserver) OnRetrieval(context.Context, Retrieval)           {}

var _ Observer = NopObserver{}
