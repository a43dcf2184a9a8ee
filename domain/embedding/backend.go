package embedding

import (
	"context"
	"sort"
)

// Backend is a single embedding capability. Implementations return one entry
// per input text in input order; a nil entry marks a failed item.
type Backend interface {
	Name() string
	Embed(ctx context.Context, credential Credential, texts []string) ([][]float64, error)
}

// BackendConfig describes how the orchestrator uses a backend.
type BackendConfig struct {
	name            string
	model           string
	enabled         bool
	priority        int
	targetDimension int
}

// NewBackendConfig creates an enabled BackendConfig with priority 0 and no projection.
func NewBackendConfig(name string) BackendConfig {
	return BackendConfig{name: name, enabled: true}
}

// Name returns the backend name.
func (c BackendConfig) Name() string { return c.name }

// Model returns the model identifier reported on produced vectors.
func (c BackendConfig) Model() string { return c.model }

// Enabled reports whether the backend takes part in orchestration.
func (c BackendConfig) Enabled() bool { return c.enabled }

// Priority returns the failover order; lower runs first.
func (c BackendConfig) Priority() int { return c.priority }

// TargetDimension returns the dimension vectors are projected to, or 0 to keep native size.
func (c BackendConfig) TargetDimension() int { return c.targetDimension }

// WithModel returns a copy with the given model.
func (c BackendConfig) WithModel(model string) BackendConfig {
	c.model = model
	return c
}

// WithEnabled returns a copy with the given enabled state.
func (c BackendConfig) WithEnabled(enabled bool) BackendConfig {
	c.enabled = enabled
	return c
}

// WithPriority returns a copy with the given priority.
func (c BackendConfig) WithPriority(priority int) BackendConfig {
	c.priority = priority
	return c
}

// WithTargetDimension returns a copy with the given target dimension.
func (c BackendConfig) WithTargetDimension(dim int) BackendConfig {
	c.targetDimension = dim
	return c
}

// Endpoint binds a Backend to its configuration and credentials.
type Endpoint struct {
	backend     Backend
	config      BackendConfig
	credentials *CredentialPool
}

// NewEndpoint creates an Endpoint. A nil pool means the backend needs no credentials.
// An empty config name falls back to the backend's own name.
func NewEndpoint(backend Backend, config BackendConfig, credentials *CredentialPool) Endpoint {
	if config.name == "" {
		config.name = backend.Name()
	}
	if credentials == nil {
		credentials = NewCredentialPool()
	}
	return Endpoint{backend: backend, config: config, credentials: credentials}
}

// Name returns the configured backend name.
func (e Endpoint) Name() string { return e.config.name }

// Backend returns the wrapped backend.
func (e Endpoint) Backend() Backend { return e.backend }

// Config returns the backend configuration.
func (e Endpoint) Config() BackendConfig { return e.config }

// Credentials returns the credential pool.
func (e Endpoint) Credentials() *CredentialPool { return e.credentials }

// Model returns the configured model, falling back to the backend's own
// Model method when it has one.
func (e Endpoint) Model() string {
	if e.config.model != "" {
		return e.config.model
	}
	if m, ok := e.backend.(interface{ Model() string }); ok {
		return m.Model()
	}
	return ""
}

// EnabledByPriority returns the enabled endpoints ordered by ascending
// priority, keeping configuration order for equal priorities.
func EnabledByPriority(endpoints []Endpoint) []Endpoint {
	enabled := make([]Endpoint, 0, len(endpoints))
	for _, e := range endpoints {
		if e.config.enabled {
			enabled = append(enabled, e)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].config.priority < enabled[j].config.priority
	})
	return enabled
}
