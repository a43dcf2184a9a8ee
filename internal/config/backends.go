package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidBackendsFile indicates a backends file that parses but cannot be used.
var ErrInvalidBackendsFile = errors.New("invalid backends file")

// BackendsFile is the YAML document naming the embedding backends.
//
//	strategy: content_aware
//	routing:
//	  code_backend: local
//	  text_backend: openai
//	backends:
//	  - name: openai
//	    type: openai
//	    model: text-embedding-3-small
//	    api_keys: ["${OPENAI_API_KEY}"]
//	    timeout: 30s
//	  - name: local
//	    type: local
//	    model_dir: /models
//	    priority: 1
type BackendsFile struct {
	Strategy string         `yaml:"strategy"`
	Routing  RoutingFile    `yaml:"routing"`
	Backends []BackendEntry `yaml:"backends"`
}

// RoutingFile is the routing section of a backends file.
type RoutingFile struct {
	CodeBackend    string   `yaml:"code_backend"`
	TextBackend    string   `yaml:"text_backend"`
	CodePatterns   []string `yaml:"code_patterns"`
	MinCodeMatches int      `yaml:"min_code_matches"`
}

// BackendEntry is one backend in a backends file. Enabled defaults to true.
type BackendEntry struct {
	Name            string   `yaml:"name"`
	Type            string   `yaml:"type"`
	Enabled         *bool    `yaml:"enabled"`
	Priority        int      `yaml:"priority"`
	TargetDimension int      `yaml:"target_dimension"`
	Model           string   `yaml:"model"`
	BaseURL         string   `yaml:"base_url"`
	APIKeys         []string `yaml:"api_keys"`
	Timeout         string   `yaml:"timeout"`
	CacheSize       int      `yaml:"cache_size"`
	HTTPCacheDir    string   `yaml:"http_cache_dir"`
	ModelDir        string   `yaml:"model_dir"`
}

// LoadBackendsFile reads and parses a backends file. ${VAR} references are
// expanded from the environment before parsing.
func LoadBackendsFile(path string) (BackendsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BackendsFile{}, fmt.Errorf("read backends file: %w", err)
	}
	return ParseBackends(data)
}

// ParseBackends parses a backends document.
func ParseBackends(data []byte) (BackendsFile, error) {
	var file BackendsFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &file); err != nil {
		return BackendsFile{}, fmt.Errorf("parse backends file: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Backends))
	for i, b := range file.Backends {
		if b.Name == "" {
			return BackendsFile{}, fmt.Errorf("%w: backend %d has no name", ErrInvalidBackendsFile, i)
		}
		if _, dup := seen[b.Name]; dup {
			return BackendsFile{}, fmt.Errorf("%w: duplicate backend %q", ErrInvalidBackendsFile, b.Name)
		}
		seen[b.Name] = struct{}{}
		if _, err := b.timeout(); err != nil {
			return BackendsFile{}, fmt.Errorf("%w: backend %q: %w", ErrInvalidBackendsFile, b.Name, err)
		}
	}
	return file, nil
}

func (b BackendEntry) timeout() (time.Duration, error) {
	if b.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(b.Timeout)
}

// ToBackend converts the entry, using defaultTimeout when none is given.
func (b BackendEntry) ToBackend(defaultTimeout time.Duration) Backend {
	opts := []BackendOption{
		WithPriority(b.Priority),
		WithTargetDimension(b.TargetDimension),
		WithModel(b.Model),
		WithBaseURL(b.BaseURL),
		WithAPIKeys(b.APIKeys...),
		WithCacheSize(b.CacheSize),
		WithHTTPCacheDir(b.HTTPCacheDir),
		WithModelDir(b.ModelDir),
		WithTimeout(defaultTimeout),
	}
	if b.Type != "" {
		opts = append(opts, WithBackendType(b.Type))
	}
	if b.Enabled != nil {
		opts = append(opts, WithEnabled(*b.Enabled))
	}
	if d, err := b.timeout(); err == nil && d > 0 {
		opts = append(opts, WithTimeout(d))
	}
	return NewBackendWithOptions(b.Name, opts...)
}

// Options returns the AppConfig options the file describes. The strategy is
// skipped when the environment already set one.
func (f BackendsFile) Options(cfg AppConfig, envStrategy string) []AppConfigOption {
	var opts []AppConfigOption
	if f.Strategy != "" && envStrategy == "" {
		opts = append(opts, WithStrategy(f.Strategy))
	}

	routing := NewRouting(f.Routing.CodeBackend, f.Routing.TextBackend).
		WithCodePatterns(f.Routing.CodePatterns).
		WithMinCodeMatches(f.Routing.MinCodeMatches)
	opts = append(opts, WithRouting(routing))

	if len(f.Backends) > 0 {
		backends := make([]Backend, 0, len(f.Backends))
		for _, b := range f.Backends {
			backends = append(backends, b.ToBackend(cfg.EmbeddingTimeout()))
		}
		opts = append(opts, WithBackends(backends...))
	}
	return opts
}
