package codestore

import (
	"fmt"

	"github.com/helixml/codestore/domain/embedding"
	"github.com/helixml/codestore/domain/search"
	"github.com/helixml/codestore/infrastructure/provider"
	"github.com/helixml/codestore/internal/config"
)

// buildEndpoints turns the configured backends and the caller's own into
// endpoints. It reports whether any backend runs a local model.
func buildEndpoints(app config.AppConfig, custom []customEndpoint) ([]embedding.Endpoint, bool, error) {
	configured := app.Backends()
	endpoints := make([]embedding.Endpoint, 0, len(configured)+len(custom))
	seen := make(map[string]struct{}, cap(endpoints))
	hasLocal := false

	add := func(ep embedding.Endpoint) error {
		if ep.Name() == "" {
			return fmt.Errorf("embedding backend without a name")
		}
		if _, dup := seen[ep.Name()]; dup {
			return fmt.Errorf("duplicate embedding backend %q", ep.Name())
		}
		seen[ep.Name()] = struct{}{}
		endpoints = append(endpoints, ep)
		return nil
	}

	for _, b := range configured {
		backend, err := provider.NewBackend(provider.Spec{
			Name:         b.Name(),
			Type:         b.Type(),
			Model:        b.Model(),
			BaseURL:      b.BaseURL(),
			Timeout:      b.Timeout(),
			CacheSize:    b.CacheSize(),
			HTTPCacheDir: b.HTTPCacheDir(),
			ModelDir:     b.ModelDir(),
		})
		if err != nil {
			return nil, false, err
		}
		if b.Type() == provider.TypeLocal {
			hasLocal = true
		}
		cfg := embedding.NewBackendConfig(b.Name()).
			WithModel(b.Model()).
			WithEnabled(b.Enabled()).
			WithPriority(b.Priority()).
			WithTargetDimension(b.TargetDimension())
		if err := add(embedding.NewEndpoint(backend, cfg, embedding.NewCredentialPool(b.APIKeys()...))); err != nil {
			return nil, false, err
		}
	}

	for _, c := range custom {
		if c.backend == nil {
			return nil, false, fmt.Errorf("embedding backend %q is nil", c.config.Name())
		}
		if err := add(embedding.NewEndpoint(c.backend, c.config, embedding.NewCredentialPool(c.keys...))); err != nil {
			return nil, false, err
		}
	}
	return endpoints, hasLocal, nil
}

// contentRouting builds the classifier and routes for the content-aware
// strategy. Unset patterns and thresholds keep the defaults.
func contentRouting(r config.Routing) (embedding.Classifier, embedding.Routing, error) {
	patterns := r.CodePatterns()
	if len(patterns) == 0 {
		patterns = embedding.DefaultCodePatterns
	}
	minMatches := r.MinCodeMatches()
	if minMatches <= 0 {
		minMatches = embedding.DefaultMinCodeMatches
	}
	classifier, err := embedding.NewClassifier(patterns, minMatches)
	if err != nil {
		return embedding.Classifier{}, embedding.Routing{}, err
	}
	return classifier, embedding.NewRouting(r.CodeBackend(), r.TextBackend()), nil
}

func rankConfig(r config.Retrieval) search.RankConfig {
	return search.DefaultRankConfig().
		WithEntityBoost(r.EntityBoost()).
		WithLexicalWeight(r.LexicalWeight()).
		WithDiversificationThreshold(r.DiversificationThreshold()).
		WithImplementationBoost(r.ImplementationBoost()).
		WithLongText(r.LongTextBonus(), r.LongTextChars())
}
