package provider

import (
	"fmt"
	"time"

	"github.com/helixml/codestore/domain/embedding"
)

// Backend types.
const (
	TypeOpenAI = "openai"
	TypeLocal  = "local"
)

// Spec describes one backend to construct.
type Spec struct {
	Name         string
	Type         string
	Model        string
	BaseURL      string
	Timeout      time.Duration
	CacheSize    int
	HTTPCacheDir string
	ModelDir     string
}

// NewBackend builds the backend a spec describes, wrapped in an LRU cache
// when CacheSize is positive.
func NewBackend(spec Spec) (embedding.Backend, error) {
	var backend embedding.Backend
	switch spec.Type {
	case TypeOpenAI, "":
		backend = NewOpenAIBackend(OpenAIConfig{
			Name:         spec.Name,
			BaseURL:      spec.BaseURL,
			Model:        spec.Model,
			Timeout:      spec.Timeout,
			HTTPCacheDir: spec.HTTPCacheDir,
		})
	case TypeLocal:
		backend = NewLocalBackend(LocalConfig{
			Name:     spec.Name,
			ModelDir: spec.ModelDir,
		})
	default:
		return nil, fmt.Errorf("%w: %q for backend %s", ErrUnknownBackendType, spec.Type, spec.Name)
	}

	if spec.CacheSize <= 0 {
		return backend, nil
	}
	cached, err := NewCachedBackend(backend, spec.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create cache for backend %s: %w", spec.Name, err)
	}
	return cached, nil
}
