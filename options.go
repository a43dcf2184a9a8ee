package codestore

import (
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/helixml/codestore/domain/embedding"
	"github.com/helixml/codestore/domain/tracking"
	"github.com/helixml/codestore/internal/config"
)

// customEndpoint is a backend supplied directly by the caller.
type customEndpoint struct {
	backend embedding.Backend
	config  embedding.BackendConfig
	keys    []string
}

// clientConfig holds configuration for Client construction.
// newClientConfig fills it from the internal/config defaults.
type clientConfig struct {
	app       config.AppConfig
	endpoints []customEndpoint
	logger    *slog.Logger
	registry  *prometheus.Registry
	observers []tracking.Observer
	closers   []io.Closer
}

func newClientConfig() *clientConfig {
	return &clientConfig{app: config.NewAppConfig()}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithConfig replaces the whole configuration, typically one produced by
// config.LoadConfig. Options given after it still apply.
func WithConfig(cfg config.AppConfig) Option {
	return func(c *clientConfig) { c.app = cfg }
}

// WithSQLite stores records in the SQLite database at path.
func WithSQLite(path string) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithDBURL("sqlite:///" + path))
	}
}

// WithPostgres stores records in PostgreSQL with the pgvector extension.
func WithPostgres(dsn string) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithDBURL(dsn))
	}
}

// WithDataDir sets the data directory holding the default SQLite database.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithDataDir(dir))
	}
}

// WithOpenAI adds an OpenAI-compatible backend named "openai" using keys as
// its credential pool.
func WithOpenAI(model string, keys ...string) Option {
	return func(c *clientConfig) {
		backend := config.NewBackendWithOptions(config.DefaultBackendName,
			config.WithModel(model),
			config.WithAPIKeys(keys...),
		)
		c.app = c.app.Apply(config.WithBackends(append(c.app.Backends(), backend)...))
	}
}

// WithBackend adds a caller-built backend. keys form its credential pool.
func WithBackend(backend embedding.Backend, cfg embedding.BackendConfig, keys ...string) Option {
	return func(c *clientConfig) {
		c.endpoints = append(c.endpoints, customEndpoint{backend: backend, config: cfg, keys: keys})
	}
}

// WithStrategy sets the initial orchestration strategy.
func WithStrategy(s embedding.Strategy) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithStrategy(s.String()))
	}
}

// WithBatchLimits sets the items and estimated tokens allowed per batch.
func WithBatchLimits(maxItems, maxTokens int) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithBatchLimits(maxItems, maxTokens))
	}
}

// WithVectorDimension sets the dimension every stored vector must have.
func WithVectorDimension(dim int) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithVectorDimension(dim))
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}

// WithMetricsRegistry registers the client's metrics on reg instead of a
// private registry.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(c *clientConfig) { c.registry = reg }
}

// WithObserver adds an observer receiving every diagnostic event.
func WithObserver(o tracking.Observer) Option {
	return func(c *clientConfig) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithCloser registers a resource to be closed when the Client shuts down,
// or straight away when New fails.
func WithCloser(closer io.Closer) Option {
	return func(c *clientConfig) {
		c.closers = append(c.closers, closer)
	}
}
