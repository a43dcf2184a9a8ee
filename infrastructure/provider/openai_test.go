package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/codestore/domain/embedding"
)

// fakeEmbeddingServer mimics the OpenAI embeddings endpoint. Each vector is
// {len(text), 0.5, index}. It counts requests and records the bearer tokens
// it saw.
type fakeEmbeddingServer struct {
	*httptest.Server
	requests atomic.Int64

	mu   sync.Mutex
	auth []string
}

func newFakeEmbeddingServer(t *testing.T) *fakeEmbeddingServer {
	t.Helper()

	f := &fakeEmbeddingServer{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		f.mu.Lock()
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.mu.Unlock()

		texts, model, ok := decodeEmbeddingRequest(w, r)
		if !ok {
			return
		}

		data := make([]map[string]any, len(texts))
		for i, text := range texts {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(len(text)), 0.5, float64(i)},
			}
		}
		writeEmbeddingResponse(w, data, model, len(texts)*4)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeEmbeddingServer) Auth() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.auth...)
}

func decodeEmbeddingRequest(w http.ResponseWriter, r *http.Request) ([]string, string, bool) {
	var body struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return nil, "", false
	}
	return body.Input, body.Model, true
}

func writeEmbeddingResponse(w http.ResponseWriter, data []map[string]any, model string, tokens int) {
	resp := map[string]any{
		"object": "list",
		"data":   data,
		"model":  model,
		"usage": map[string]int{
			"prompt_tokens": tokens,
			"total_tokens":  tokens,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestOpenAI(url string) *OpenAIBackend {
	return NewOpenAIBackend(OpenAIConfig{
		Name:    "remote",
		BaseURL: url,
		Model:   "test-model",
	})
}

func TestOpenAIBackend_Defaults(t *testing.T) {
	b := NewOpenAIBackend(OpenAIConfig{})
	assert.Equal(t, "openai", b.Name())
	assert.Equal(t, DefaultOpenAIModel, b.Model())
}

func TestOpenAIBackend_EmbedEmpty(t *testing.T) {
	srv := newFakeEmbeddingServer(t)
	b := newTestOpenAI(srv.URL)

	vectors, err := b.Embed(context.Background(), embedding.NewCredential("k1"), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Equal(t, int64(0), srv.requests.Load(), "no HTTP request for empty input")
}

func TestOpenAIBackend_Embed(t *testing.T) {
	srv := newFakeEmbeddingServer(t)
	b := newTestOpenAI(srv.URL)

	vectors, err := b.Embed(context.Background(), embedding.NewCredential("k1"), []string{"hello", "hi"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{5, 0.5, 0}, vectors[0])
	assert.Equal(t, []float64{2, 0.5, 1}, vectors[1])
	assert.Equal(t, int64(1), srv.requests.Load(), "one request per call")
}

func TestOpenAIBackend_UsesCredentialKey(t *testing.T) {
	srv := newFakeEmbeddingServer(t)
	b := newTestOpenAI(srv.URL)
	ctx := context.Background()

	for _, key := range []string{"k1", "k2", "k1"} {
		_, err := b.Embed(ctx, embedding.NewCredential(key), []string{"x"})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"Bearer k1", "Bearer k2", "Bearer k1"}, srv.Auth())
	assert.Len(t, b.clients, 2, "one client per key")
}

func TestOpenAIBackend_OrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		texts, model, ok := decodeEmbeddingRequest(w, r)
		if !ok {
			return
		}
		data := make([]map[string]any, 0, len(texts))
		for i := len(texts) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(i)},
			})
		}
		writeEmbeddingResponse(w, data, model, 1)
	}))
	defer srv.Close()

	vectors, err := newTestOpenAI(srv.URL).Embed(context.Background(), embedding.NewCredential("k"), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0}, {1}, {2}}, vectors)
}

func TestOpenAIBackend_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"requests"}}`))
	}))
	defer srv.Close()

	_, err := newTestOpenAI(srv.URL).Embed(context.Background(), embedding.NewCredential("k"), []string{"a"})
	require.Error(t, err)

	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, http.StatusTooManyRequests, provErr.StatusCode())
	assert.True(t, provErr.IsRateLimited())
	assert.Equal(t, "embedding", provErr.Operation())
	assert.True(t, embedding.IsRateLimit(err))
}

func TestOpenAIBackend_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server"}}`))
	}))
	defer srv.Close()

	_, err := newTestOpenAI(srv.URL).Embed(context.Background(), embedding.NewCredential("k"), []string{"a"})

	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, http.StatusInternalServerError, provErr.StatusCode())
	assert.False(t, embedding.IsRateLimit(err))
}

func TestOpenAIBackend_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddingResponse(w, nil, "", 0)
	}))
	defer srv.Close()

	_, err := newTestOpenAI(srv.URL).Embed(context.Background(), embedding.NewCredential("k"), []string{"a", "b"})
	require.ErrorIs(t, err, errUpstreamProviderFailure)
}

func TestOpenAIBackend_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, model, ok := decodeEmbeddingRequest(w, r)
		if !ok {
			return
		}
		data := []map[string]any{{"object": "embedding", "index": 0, "embedding": []float64{1}}}
		writeEmbeddingResponse(w, data, model, 2)
	}))
	defer srv.Close()

	_, err := newTestOpenAI(srv.URL).Embed(context.Background(), embedding.NewCredential("k"), []string{"a", "b"})
	require.ErrorIs(t, err, errEmbeddingCountMismatch)
}

func TestOpenAIBackend_CancelledContext(t *testing.T) {
	srv := newFakeEmbeddingServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestOpenAI(srv.URL).Embed(ctx, embedding.NewCredential("k"), []string{"a"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestOpenAIBackend_HTTPCacheReplays(t *testing.T) {
	srv := newFakeEmbeddingServer(t)
	b := NewOpenAIBackend(OpenAIConfig{
		BaseURL:      srv.URL,
		Model:        "test-model",
		HTTPCacheDir: t.TempDir(),
	})
	ctx := context.Background()

	first, err := b.Embed(ctx, embedding.NewCredential("k"), []string{"same"})
	require.NoError(t, err)
	second, err := b.Embed(ctx, embedding.NewCredential("k"), []string{"same"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), srv.requests.Load())
}
