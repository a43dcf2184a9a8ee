package provider

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/codestore/domain/embedding"
)

// countingBackend returns {len(text)} per text, nil for "fail", and records
// every batch it receives.
type countingBackend struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (b *countingBackend) Name() string  { return "counting" }
func (b *countingBackend) Model() string { return "count-model" }

func (b *countingBackend) Embed(_ context.Context, _ embedding.Credential, texts []string) ([][]float64, error) {
	b.mu.Lock()
	b.calls = append(b.calls, append([]string(nil), texts...))
	b.mu.Unlock()

	if b.err != nil {
		return nil, b.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if text == "fail" {
			continue
		}
		out[i] = []float64{float64(len(text))}
	}
	return out, nil
}

func TestNewCachedBackend_RejectsSize(t *testing.T) {
	_, err := NewCachedBackend(&countingBackend{}, 0)
	require.Error(t, err)
}

func TestCachedBackend_EmbedsOnlyMisses(t *testing.T) {
	inner := &countingBackend{}
	b, err := NewCachedBackend(inner, 16)
	require.NoError(t, err)
	assert.Equal(t, "counting", b.Name())
	assert.Equal(t, "count-model", b.Model())

	ctx := context.Background()
	cred := embedding.NewCredential("k")

	first, err := b.Embed(ctx, cred, []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1}, {2}}, first)

	second, err := b.Embed(ctx, cred, []string{"bb", "ccc", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2}, {3}, {1}}, second)

	require.Len(t, inner.calls, 2)
	assert.Equal(t, []string{"ccc"}, inner.calls[1], "only the miss reaches the backend")
	assert.Equal(t, 3, b.Len())
}

func TestCachedBackend_AllHitsSkipBackend(t *testing.T) {
	inner := &countingBackend{}
	b, err := NewCachedBackend(inner, 16)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = b.Embed(ctx, embedding.Credential{}, []string{"x"})
	require.NoError(t, err)
	_, err = b.Embed(ctx, embedding.Credential{}, []string{"x", "x"})
	require.NoError(t, err)

	assert.Len(t, inner.calls, 1)
}

func TestCachedBackend_FailuresNotCached(t *testing.T) {
	inner := &countingBackend{}
	b, err := NewCachedBackend(inner, 16)
	require.NoError(t, err)

	ctx := context.Background()
	out, err := b.Embed(ctx, embedding.Credential{}, []string{"fail", "ok"})
	require.NoError(t, err)
	assert.Nil(t, out[0])
	assert.Equal(t, []float64{2}, out[1])

	_, err = b.Embed(ctx, embedding.Credential{}, []string{"fail"})
	require.NoError(t, err)
	require.Len(t, inner.calls, 2)
	assert.Equal(t, []string{"fail"}, inner.calls[1])
}

func TestCachedBackend_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	b, err := NewCachedBackend(&countingBackend{err: boom}, 16)
	require.NoError(t, err)

	_, err = b.Embed(context.Background(), embedding.Credential{}, []string{"a"})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, b.Len())
}

func TestCachedBackend_ReturnsCopies(t *testing.T) {
	b, err := NewCachedBackend(&countingBackend{}, 16)
	require.NoError(t, err)

	ctx := context.Background()
	out, err := b.Embed(ctx, embedding.Credential{}, []string{"abc"})
	require.NoError(t, err)
	out[0][0] = 99

	again, err := b.Embed(ctx, embedding.Credential{}, []string{"abc"})
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, again[0])
}
