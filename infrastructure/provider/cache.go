package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/helixml/codestore/domain/embedding"
)

// CachedBackend decorates a backend with an in-memory LRU of vectors keyed by
// the SHA-256 of model and text. Only cache misses reach the inner backend,
// and per-item failures are never cached.
type CachedBackend struct {
	inner embedding.Backend
	model string
	cache *lru.Cache[string, []float64]
}

// NewCachedBackend wraps inner with a cache holding up to size vectors.
func NewCachedBackend(inner embedding.Backend, size int) (*CachedBackend, error) {
	cache, err := lru.New[string, []float64](size)
	if err != nil {
		return nil, err
	}
	model := ""
	if m, ok := inner.(interface{ Model() string }); ok {
		model = m.Model()
	}
	return &CachedBackend{inner: inner, model: model, cache: cache}, nil
}

// Name returns the inner backend name.
func (b *CachedBackend) Name() string { return b.inner.Name() }

// Model returns the inner backend model.
func (b *CachedBackend) Model() string { return b.model }

// Len returns the number of cached vectors.
func (b *CachedBackend) Len() int { return b.cache.Len() }

// Embed serves cached vectors and embeds the rest with the inner backend.
func (b *CachedBackend) Embed(ctx context.Context, credential embedding.Credential, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	keys := make([]string, len(texts))

	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		keys[i] = b.key(text)
		if v, ok := b.cache.Get(keys[i]); ok {
			vectors[i] = slices.Clone(v)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return vectors, nil
	}

	embedded, err := b.inner.Embed(ctx, credential, missTexts)
	if err != nil {
		return nil, err
	}
	if len(embedded) != len(missTexts) {
		return embedded, nil
	}

	for j, i := range missIdx {
		vectors[i] = embedded[j]
		if embedded[j] != nil {
			b.cache.Add(keys[i], slices.Clone(embedded[j]))
		}
	}
	return vectors, nil
}

func (b *CachedBackend) key(text string) string {
	sum := sha256.Sum256([]byte(b.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

var _ embedding.Backend = (*CachedBackend)(nil)
