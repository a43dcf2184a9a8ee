package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/helixml/codestore/domain/embedding"
	"github.com/helixml/codestore/domain/tracking"
)

// Invoker defaults.
const (
	DefaultInvokeTimeout = 60 * time.Second
	DefaultBackoffBase   = 500 * time.Millisecond
	DefaultBackoffCap    = 30 * time.Second
)

// Invoker calls a single backend with rate-limit aware credential rotation.
// At most one attempt per credential in the endpoint's pool is made.
type Invoker struct {
	timeout     time.Duration
	backoffBase time.Duration
	backoffCap  time.Duration
	stats       *embedding.Stats
	observer    tracking.Observer
	logger      *slog.Logger
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithInvokeTimeout bounds each backend call. Zero disables the bound.
func WithInvokeTimeout(d time.Duration) InvokerOption {
	return func(i *Invoker) { i.timeout = d }
}

// WithBackoff sets the first retry delay and the delay cap.
func WithBackoff(base, max time.Duration) InvokerOption {
	return func(i *Invoker) {
		i.backoffBase = base
		i.backoffCap = max
	}
}

// WithInvokerObserver sets the event observer.
func WithInvokerObserver(o tracking.Observer) InvokerOption {
	return func(i *Invoker) {
		if o != nil {
			i.observer = o
		}
	}
}

// WithInvokerLogger sets the logger.
func WithInvokerLogger(l *slog.Logger) InvokerOption {
	return func(i *Invoker) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewInvoker creates an Invoker that records into stats.
func NewInvoker(stats *embedding.Stats, opts ...InvokerOption) *Invoker {
	if stats == nil {
		stats = embedding.NewStats()
	}
	i := &Invoker{
		timeout:     DefaultInvokeTimeout,
		backoffBase: DefaultBackoffBase,
		backoffCap:  DefaultBackoffCap,
		stats:       stats,
		observer:    tracking.NopObserver{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.backoffBase <= 0 {
		i.backoffBase = time.Millisecond
	}
	return i
}

// Stats returns the counters the invoker records into.
func (i *Invoker) Stats() *embedding.Stats { return i.stats }

// Invoke embeds texts with the endpoint's backend. Rate limits rotate to the
// next credential and timeouts retry with the same one, both after an
// exponential backoff. Other errors return immediately.
func (i *Invoker) Invoke(ctx context.Context, endpoint embedding.Endpoint, texts []string) ([][]float64, error) {
	pool := endpoint.Credentials()
	maxAttempts := pool.Size()
	credential := pool.Current()

	backoff := retry.WithMaxRetries(uint64(maxAttempts-1), retry.NewExponential(i.backoffBase))
	if i.backoffCap > 0 {
		backoff = retry.WithCappedDuration(i.backoffCap, backoff)
	}

	var vectors [][]float64
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		out, outcome, err := i.call(ctx, endpoint, credential, texts, attempt)

		switch outcome {
		case tracking.OutcomeSuccess:
			vectors = out
			return nil
		case tracking.OutcomeRateLimited:
			if pool.Size() > 1 {
				credential = pool.Next()
				i.observer.OnRotation(ctx, tracking.Rotation{
					Backend:  endpoint.Name(),
					Attempt:  attempt,
					PoolSize: pool.Size(),
				})
			}
			return retry.RetryableError(err)
		case tracking.OutcomeTimeout:
			return retry.RetryableError(err)
		default:
			return err
		}
	})
	if err != nil {
		return nil, embedding.NewBackendInvocationError(endpoint.Name(), attempt, err)
	}
	return vectors, nil
}

func (i *Invoker) call(
	ctx context.Context,
	endpoint embedding.Endpoint,
	credential embedding.Credential,
	texts []string,
	attempt int,
) ([][]float64, tracking.Outcome, error) {
	name := endpoint.Name()

	callCtx := ctx
	if i.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	i.stats.RecordRequest(name)
	start := time.Now()
	vectors, err := endpoint.Backend().Embed(callCtx, credential, texts)
	if err == nil && len(vectors) != len(texts) {
		err = fmt.Errorf("%w: got %d vectors for %d texts", embedding.ErrInvalidResponse, len(vectors), len(texts))
	}

	outcome := tracking.OutcomeSuccess
	switch {
	case err == nil:
		i.stats.RecordSuccess(name)
	case embedding.IsRateLimit(err):
		outcome = tracking.OutcomeRateLimited
	case ctx.Err() == nil && isTimeout(callCtx, err):
		outcome = tracking.OutcomeTimeout
	default:
		outcome = tracking.OutcomeFailure
	}
	if err != nil {
		i.stats.RecordFailure(name)
		i.logger.DebugContext(ctx, "backend invocation failed",
			slog.String("backend", name),
			slog.Int("attempt", attempt),
			slog.String("outcome", string(outcome)),
			slog.String("error", err.Error()),
		)
	}

	i.observer.OnInvocation(ctx, tracking.Invocation{
		Backend:  name,
		Attempt:  attempt,
		Items:    len(texts),
		Outcome:  outcome,
		Duration: time.Since(start),
		Err:      err,
	})

	return vectors, outcome, err
}

func isTimeout(callCtx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
