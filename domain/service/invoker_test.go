package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/codestore/domain/embedding"
	"github.com/helixml/codestore/domain/tracking"
)

func TestInvoker_Success(t *testing.T) {
	backend := &fakeBackend{name: "a", marker: 1}
	stats := embedding.NewStats("a")
	inv := fastInvoker(stats)

	vectors, err := inv.Invoke(context.Background(), endpoint(backend, 0, "k1"), []string{"x", "yy"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 1}, {1, 2}}, vectors)

	s := stats.Backend("a")
	assert.Equal(t, int64(1), s.Requests())
	assert.Equal(t, int64(1), s.Successes())
	assert.Equal(t, int64(0), s.Failures())
}

func TestInvoker_RateLimitRotatesCredentials(t *testing.T) {
	backend := &fakeBackend{name: "a", marker: 1}
	backend.embed = func(_ int, c embedding.Credential, texts []string) ([][]float64, error) {
		if c.Key() != "k3" {
			return nil, statusError{code: 429}
		}
		return [][]float64{{1}}, nil
	}
	obs := &recordingObserver{}
	stats := embedding.NewStats("a")
	inv := fastInvoker(stats, WithInvokerObserver(obs))

	vectors, err := inv.Invoke(context.Background(), endpoint(backend, 0, "k1", "k2", "k3"), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, []string{"k1", "k2", "k3"}, backend.Keys())

	s := stats.Backend("a")
	assert.Equal(t, int64(3), s.Requests())
	assert.Equal(t, int64(1), s.Successes())
	assert.Equal(t, int64(2), s.Failures())

	require.Len(t, obs.rotations, 2)
	assert.Equal(t, 3, obs.rotations[0].PoolSize)
	require.Len(t, obs.invocations, 3)
	assert.Equal(t, tracking.OutcomeRateLimited, obs.invocations[0].Outcome)
	assert.Equal(t, tracking.OutcomeSuccess, obs.invocations[2].Outcome)
}

func TestInvoker_RateLimitAttemptsBoundedByPoolSize(t *testing.T) {
	backend := &fakeBackend{name: "a", embed: failing(fmt.Errorf("upstream: %w", embedding.ErrRateLimited))}
	inv := fastInvoker(embedding.NewStats("a"))

	_, err := inv.Invoke(context.Background(), endpoint(backend, 0, "k1", "k2"), []string{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrRateLimited)

	var invErr *embedding.BackendInvocationError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, "a", invErr.Backend())
	assert.Equal(t, 2, invErr.Attempts())
	assert.Len(t, backend.Calls(), 2)
}

func TestInvoker_SingleCredentialRateLimitNotRetried(t *testing.T) {
	backend := &fakeBackend{name: "a", embed: failing(statusError{code: 429})}
	inv := fastInvoker(embedding.NewStats("a"))

	_, err := inv.Invoke(context.Background(), endpoint(backend, 0), []string{"x"})
	require.Error(t, err)
	assert.Len(t, backend.Calls(), 1)
}

func TestInvoker_OtherErrorsReturnImmediately(t *testing.T) {
	backend := &fakeBackend{name: "a", embed: failing(errBoom)}
	stats := embedding.NewStats("a")
	inv := fastInvoker(stats)

	_, err := inv.Invoke(context.Background(), endpoint(backend, 0, "k1", "k2", "k3"), []string{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Len(t, backend.Calls(), 1)
	assert.Equal(t, int64(1), stats.Backend("a").Failures())
}

func TestInvoker_TimeoutRetriesWithSameCredential(t *testing.T) {
	backend := &timeoutOnceBackend{fakeBackend: &fakeBackend{name: "a", marker: 2}}
	obs := &recordingObserver{}
	inv := fastInvoker(embedding.NewStats("a"), WithInvokeTimeout(20*time.Millisecond), WithInvokerObserver(obs))

	ep := embedding.NewEndpoint(backend, embedding.NewBackendConfig("a"), embedding.NewCredentialPool("k1", "k2"))
	vectors, err := inv.Invoke(context.Background(), ep, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2, 1}}, vectors)
	assert.Equal(t, []string{"k1", "k1"}, backend.Keys())

	require.Len(t, obs.invocations, 2)
	assert.Equal(t, tracking.OutcomeTimeout, obs.invocations[0].Outcome)
	assert.Equal(t, tracking.OutcomeSuccess, obs.invocations[1].Outcome)
	assert.Empty(t, obs.rotations)
}

func TestInvoker_LengthMismatchIsInvalidResponse(t *testing.T) {
	backend := &fakeBackend{name: "a"}
	backend.embed = func(int, embedding.Credential, []string) ([][]float64, error) {
		return [][]float64{{1}}, nil
	}
	inv := fastInvoker(embedding.NewStats("a"))

	_, err := inv.Invoke(context.Background(), endpoint(backend, 0, "k1", "k2"), []string{"x", "y"})
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrInvalidResponse)
	assert.Len(t, backend.Calls(), 1)
}

func TestInvoker_CancelledContext(t *testing.T) {
	backend := &fakeBackend{name: "a", delay: time.Second}
	inv := fastInvoker(embedding.NewStats("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := inv.Invoke(ctx, endpoint(backend, 0, "k1", "k2"), []string{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// timeoutOnceBackend blocks until its deadline on the first call.
type timeoutOnceBackend struct {
	*fakeBackend
	calls int
}

func (b *timeoutOnceBackend) Embed(ctx context.Context, c embedding.Credential, texts []string) ([][]float64, error) {
	b.calls++
	if b.calls == 1 {
		b.fakeBackend.mu.Lock()
		b.fakeBackend.calls = append(b.fakeBackend.calls, fakeCall{key: c.Key(), texts: texts})
		b.fakeBackend.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return b.fakeBackend.Embed(ctx, c, texts)
}
