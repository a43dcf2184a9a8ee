package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/helixml/codestore/domain/embedding"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig holds configuration for an OpenAI-compatible backend.
type OpenAIConfig struct {
	Name         string
	BaseURL      string
	Model        string
	Timeout      time.Duration
	HTTPCacheDir string
}

// OpenAIBackend embeds texts through any OpenAI-compatible /embeddings API.
// The credential passed to Embed selects the API key, and one client is kept
// per key.
type OpenAIBackend struct {
	name       string
	baseURL    string
	model      string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]*openai.Client
}

// NewOpenAIBackend creates an OpenAI-compatible backend.
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	name := cfg.Name
	if name == "" {
		name = "openai"
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.HTTPCacheDir != "" {
		httpClient.Transport = NewCachingTransport(cfg.HTTPCacheDir, nil)
	}

	return &OpenAIBackend{
		name:       name,
		baseURL:    cfg.BaseURL,
		model:      model,
		httpClient: httpClient,
		clients:    make(map[string]*openai.Client),
	}
}

// Name returns the backend name.
func (b *OpenAIBackend) Name() string { return b.name }

// Model returns the embedding model.
func (b *OpenAIBackend) Model() string { return b.model }

// Embed generates one vector per text in a single API call.
func (b *OpenAIBackend) Embed(ctx context.Context, credential embedding.Credential, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	resp, err := b.client(credential).CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(b.model),
		Input: texts,
	})
	if err != nil {
		return nil, wrapError("embedding", err)
	}

	// go-openai parses an error body served with 200 as an empty response.
	if len(resp.Data) == 0 && string(resp.Model) == "" && resp.Usage.TotalTokens == 0 {
		return nil, NewProviderError("embedding", 0,
			"provider returned no embedding data, no model and zero usage", errUpstreamProviderFailure)
	}

	vectors := make([][]float64, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, NewProviderError("embedding", 0,
				fmt.Sprintf("embedding index %d out of range", data.Index), errEmbeddingCountMismatch)
		}
		values := make([]float64, len(data.Embedding))
		for j, v := range data.Embedding {
			values[j] = float64(v)
		}
		vectors[data.Index] = values
	}
	if len(resp.Data) != len(texts) {
		return nil, NewProviderError("embedding", 0,
			fmt.Sprintf("got %d vectors for %d texts", len(resp.Data), len(texts)), errEmbeddingCountMismatch)
	}
	return vectors, nil
}

func (b *OpenAIBackend) client(credential embedding.Credential) *openai.Client {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := credential.Key()
	if c, ok := b.clients[key]; ok {
		return c
	}

	config := openai.DefaultConfig(key)
	if b.baseURL != "" {
		config.BaseURL = b.baseURL
	}
	config.HTTPClient = b.httpClient

	c := openai.NewClientWithConfig(config)
	b.clients[key] = c
	return c
}

// wrapError wraps a go-openai error into a ProviderError.
func wrapError(operation string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError(operation, apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError(operation, reqErr.HTTPStatusCode, reqErr.Error(), err)
	}

	return NewProviderError(operation, 0, err.Error(), err)
}

var _ embedding.Backend = (*OpenAIBackend)(nil)
