// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost                     = "0.0.0.0"
	DefaultPort                     = 8080
	DefaultLogLevel                 = "INFO"
	DefaultEmbeddingStrategy        = "failover"
	DefaultMaxBatchSize             = 32
	DefaultMaxBatchTokens           = 8192
	DefaultEmbeddingTimeout         = 60 * time.Second
	DefaultEmbeddingBackoffBase     = 500 * time.Millisecond
	DefaultVectorDimension          = 1536
	DefaultStoreRetryAttempts       = 3
	DefaultStoreRetryBaseDelay      = 100 * time.Millisecond
	DefaultRetrievalOversample      = 5
	DefaultEntityBoost              = 0.15
	DefaultLexicalWeight            = 0.1
	DefaultDiversificationThreshold = 0.3
	DefaultImplementationBoost      = 0.1
	DefaultLongTextBonus            = 0.05
	DefaultLongTextChars            = 800
	DefaultFailureLogInterval       = 5 * time.Second
	DefaultBackendName              = "openai"
	DefaultBackendType              = "openai"
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// Backend holds the configuration of one embedding backend.
type Backend struct {
	name            string
	backendType     string
	enabled         bool
	priority        int
	targetDimension int
	model           string
	baseURL         string
	apiKeys         []string
	timeout         time.Duration
	cacheSize       int
	httpCacheDir    string
	modelDir        string
}

// NewBackend creates an enabled OpenAI-compatible backend with the given name.
func NewBackend(name string) Backend {
	return Backend{
		name:        name,
		backendType: DefaultBackendType,
		enabled:     true,
		timeout:     DefaultEmbeddingTimeout,
	}
}

// Name returns the backend name.
func (b Backend) Name() string { return b.name }

// Type returns the backend type: openai or local.
func (b Backend) Type() string { return b.backendType }

// Enabled reports whether the backend takes part in generation.
func (b Backend) Enabled() bool { return b.enabled }

// Priority returns the failover position; lower goes first.
func (b Backend) Priority() int { return b.priority }

// TargetDimension returns the projection target, or zero for none.
func (b Backend) TargetDimension() int { return b.targetDimension }

// Model returns the model identifier.
func (b Backend) Model() string { return b.model }

// BaseURL returns the API base URL.
func (b Backend) BaseURL() string { return b.baseURL }

// APIKeys returns a copy of the credential pool keys.
func (b Backend) APIKeys() []string {
	keys := make([]string, len(b.apiKeys))
	copy(keys, b.apiKeys)
	return keys
}

// Timeout returns the per-request timeout.
func (b Backend) Timeout() time.Duration { return b.timeout }

// CacheSize returns the number of vectors cached in memory, or zero.
func (b Backend) CacheSize() int { return b.cacheSize }

// HTTPCacheDir returns the on-disk response cache directory, if any.
func (b Backend) HTTPCacheDir() string { return b.httpCacheDir }

// ModelDir returns the local model directory.
func (b Backend) ModelDir() string { return b.modelDir }

// BackendOption is a functional option for Backend.
type BackendOption func(*Backend)

// WithBackendType sets the backend type.
func WithBackendType(t string) BackendOption {
	return func(b *Backend) { b.backendType = t }
}

// WithEnabled sets whether the backend is enabled.
func WithEnabled(enabled bool) BackendOption {
	return func(b *Backend) { b.enabled = enabled }
}

// WithPriority sets the failover priority.
func WithPriority(p int) BackendOption {
	return func(b *Backend) { b.priority = p }
}

// WithTargetDimension sets the projection target.
func WithTargetDimension(dim int) BackendOption {
	return func(b *Backend) { b.targetDimension = dim }
}

// WithModel sets the model identifier.
func WithModel(model string) BackendOption {
	return func(b *Backend) { b.model = model }
}

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) BackendOption {
	return func(b *Backend) { b.baseURL = url }
}

// WithAPIKeys sets the credential pool keys. Blank keys are dropped.
func WithAPIKeys(keys ...string) BackendOption {
	return func(b *Backend) {
		b.apiKeys = make([]string, 0, len(keys))
		for _, k := range keys {
			if k = strings.TrimSpace(k); k != "" {
				b.apiKeys = append(b.apiKeys, k)
			}
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) BackendOption {
	return func(b *Backend) { b.timeout = d }
}

// WithCacheSize sets the in-memory vector cache size.
func WithCacheSize(n int) BackendOption {
	return func(b *Backend) { b.cacheSize = n }
}

// WithHTTPCacheDir sets the on-disk response cache directory.
func WithHTTPCacheDir(dir string) BackendOption {
	return func(b *Backend) { b.httpCacheDir = dir }
}

// WithModelDir sets the local model directory.
func WithModelDir(dir string) BackendOption {
	return func(b *Backend) { b.modelDir = dir }
}

// NewBackendWithOptions creates a Backend with functional options.
func NewBackendWithOptions(name string, opts ...BackendOption) Backend {
	b := NewBackend(name)
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// Routing configures the content-aware strategy.
type Routing struct {
	codeBackend    string
	textBackend    string
	codePatterns   []string
	minCodeMatches int
}

// NewRouting creates a Routing for the given backend names.
func NewRouting(codeBackend, textBackend string) Routing {
	return Routing{codeBackend: codeBackend, textBackend: textBackend}
}

// CodeBackend returns the backend for code-like text.
func (r Routing) CodeBackend() string { return r.codeBackend }

// TextBackend returns the backend for natural-language text.
func (r Routing) TextBackend() string { return r.textBackend }

// CodePatterns returns the classifier patterns; empty means the defaults.
func (r Routing) CodePatterns() []string {
	patterns := make([]string, len(r.codePatterns))
	copy(patterns, r.codePatterns)
	return patterns
}

// MinCodeMatches returns the pattern hits needed to classify text as code;
// zero means the default.
func (r Routing) MinCodeMatches() int { return r.minCodeMatches }

// WithCodePatterns returns a new Routing with the given patterns.
func (r Routing) WithCodePatterns(patterns []string) Routing {
	r.codePatterns = make([]string, len(patterns))
	copy(r.codePatterns, patterns)
	return r
}

// WithMinCodeMatches returns a new Routing with the given threshold.
func (r Routing) WithMinCodeMatches(n int) Routing {
	r.minCodeMatches = n
	return r
}

// Retrieval configures the hybrid retrieval engine.
type Retrieval struct {
	oversample               int
	entityBoost              float64
	lexicalWeight            float64
	diversificationThreshold float64
	implementationBoost      float64
	longTextBonus            float64
	longTextChars            int
}

// NewRetrieval creates a Retrieval with defaults.
func NewRetrieval() Retrieval {
	return Retrieval{
		oversample:               DefaultRetrievalOversample,
		entityBoost:              DefaultEntityBoost,
		lexicalWeight:            DefaultLexicalWeight,
		diversificationThreshold: DefaultDiversificationThreshold,
		implementationBoost:      DefaultImplementationBoost,
		longTextBonus:            DefaultLongTextBonus,
		longTextChars:            DefaultLongTextChars,
	}
}

// Oversample returns the candidate multiplier.
func (r Retrieval) Oversample() int { return r.oversample }

// EntityBoost returns the entity name bonus.
func (r Retrieval) EntityBoost() float64 { return r.entityBoost }

// LexicalWeight returns the weight of query term overlap.
func (r Retrieval) LexicalWeight() float64 { return r.lexicalWeight }

// DiversificationThreshold returns the same-file penalty threshold.
func (r Retrieval) DiversificationThreshold() float64 { return r.diversificationThreshold }

// ImplementationBoost returns the bonus for implementation-like text.
func (r Retrieval) ImplementationBoost() float64 { return r.implementationBoost }

// LongTextBonus returns the bonus for long texts.
func (r Retrieval) LongTextBonus() float64 { return r.longTextBonus }

// LongTextChars returns the length above which the long-text bonus applies.
func (r Retrieval) LongTextChars() int { return r.longTextChars }

// WithOversample returns a new Retrieval with the given multiplier.
func (r Retrieval) WithOversample(n int) Retrieval {
	if n > 0 {
		r.oversample = n
	}
	return r
}

// WithRanking returns a new Retrieval with the given re-ranking magnitudes.
func (r Retrieval) WithRanking(entityBoost, lexicalWeight, diversification, implementation float64) Retrieval {
	r.entityBoost = entityBoost
	r.lexicalWeight = lexicalWeight
	r.diversificationThreshold = diversification
	r.implementationBoost = implementation
	return r
}

// WithLongText returns a new Retrieval with the given long-text bonus.
func (r Retrieval) WithLongText(bonus float64, chars int) Retrieval {
	r.longTextBonus = bonus
	r.longTextChars = chars
	return r
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host                string
	port                int
	dataDir             string
	dbURL               string
	logLevel            string
	logFormat           LogFormat
	strategy            string
	maxBatchSize        int
	maxBatchTokens      int
	embeddingTimeout    time.Duration
	backoffBase         time.Duration
	vectorDimension     int
	storeRetryAttempts  int
	storeRetryBaseDelay time.Duration
	failureLogInterval  time.Duration
	retrieval           Retrieval
	routing             Routing
	backends            []Backend
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codestore"
	}
	return filepath.Join(home, ".codestore")
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := DefaultDataDir()
	return AppConfig{
		host:                DefaultHost,
		port:                DefaultPort,
		dataDir:             dataDir,
		dbURL:               defaultDBURL(dataDir),
		logLevel:            DefaultLogLevel,
		logFormat:           LogFormatPretty,
		strategy:            DefaultEmbeddingStrategy,
		maxBatchSize:        DefaultMaxBatchSize,
		maxBatchTokens:      DefaultMaxBatchTokens,
		embeddingTimeout:    DefaultEmbeddingTimeout,
		backoffBase:         DefaultEmbeddingBackoffBase,
		vectorDimension:     DefaultVectorDimension,
		storeRetryAttempts:  DefaultStoreRetryAttempts,
		storeRetryBaseDelay: DefaultStoreRetryBaseDelay,
		failureLogInterval:  DefaultFailureLogInterval,
		retrieval:           NewRetrieval(),
		backends:            []Backend{},
	}
}

func defaultDBURL(dataDir string) string {
	return "sqlite:///" + filepath.Join(dataDir, "codestore.db")
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// Strategy returns the embedding strategy name.
func (c AppConfig) Strategy() string { return c.strategy }

// MaxBatchSize returns the maximum texts per batch.
func (c AppConfig) MaxBatchSize() int { return c.maxBatchSize }

// MaxBatchTokens returns the maximum estimated tokens per batch.
func (c AppConfig) MaxBatchTokens() int { return c.maxBatchTokens }

// EmbeddingTimeout returns the per-invocation timeout.
func (c AppConfig) EmbeddingTimeout() time.Duration { return c.embeddingTimeout }

// BackoffBase returns the first retry delay of the invoker.
func (c AppConfig) BackoffBase() time.Duration { return c.backoffBase }

// VectorDimension returns the stored vector dimension.
func (c AppConfig) VectorDimension() int { return c.vectorDimension }

// StoreRetryAttempts returns the attempts per store operation.
func (c AppConfig) StoreRetryAttempts() int { return c.storeRetryAttempts }

// StoreRetryBaseDelay returns the first store retry delay.
func (c AppConfig) StoreRetryBaseDelay() time.Duration { return c.storeRetryBaseDelay }

// FailureLogInterval returns the minimum gap between repeated backend
// failure logs.
func (c AppConfig) FailureLogInterval() time.Duration { return c.failureLogInterval }

// Retrieval returns the retrieval config.
func (c AppConfig) Retrieval() Retrieval { return c.retrieval }

// Routing returns the content-aware routing config.
func (c AppConfig) Routing() Routing { return c.routing }

// Backends returns a copy of the configured backends.
func (c AppConfig) Backends() []Backend {
	backends := make([]Backend, len(c.backends))
	copy(backends, c.backends)
	return backends
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDataDir sets the data directory. A default SQLite URL follows it.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) {
		if c.dbURL == "" || c.dbURL == defaultDBURL(c.dataDir) {
			c.dbURL = defaultDBURL(dir)
		}
		c.dataDir = dir
	}
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithStrategy sets the embedding strategy name.
func WithStrategy(s string) AppConfigOption {
	return func(c *AppConfig) { c.strategy = s }
}

// WithBatchLimits sets the batch budget. Non-positive values mean unbounded.
func WithBatchLimits(maxSize, maxTokens int) AppConfigOption {
	return func(c *AppConfig) {
		c.maxBatchSize = maxSize
		c.maxBatchTokens = maxTokens
	}
}

// WithEmbeddingTimeout sets the per-invocation timeout.
func WithEmbeddingTimeout(d time.Duration) AppConfigOption {
	return func(c *AppConfig) { c.embeddingTimeout = d }
}

// WithBackoffBase sets the invoker's first retry delay.
func WithBackoffBase(d time.Duration) AppConfigOption {
	return func(c *AppConfig) { c.backoffBase = d }
}

// WithVectorDimension sets the stored vector dimension.
func WithVectorDimension(dim int) AppConfigOption {
	return func(c *AppConfig) {
		if dim > 0 {
			c.vectorDimension = dim
		}
	}
}

// WithStoreRetry sets the store retry policy.
func WithStoreRetry(attempts int, base time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if attempts > 0 {
			c.storeRetryAttempts = attempts
		}
		if base > 0 {
			c.storeRetryBaseDelay = base
		}
	}
}

// WithFailureLogInterval sets the gap between repeated failure logs.
func WithFailureLogInterval(d time.Duration) AppConfigOption {
	return func(c *AppConfig) { c.failureLogInterval = d }
}

// WithRetrieval sets the retrieval config.
func WithRetrieval(r Retrieval) AppConfigOption {
	return func(c *AppConfig) { c.retrieval = r }
}

// WithRouting sets the content-aware routing config.
func WithRouting(r Routing) AppConfigOption {
	return func(c *AppConfig) { c.routing = r }
}

// WithBackends replaces the configured backends.
func WithBackends(backends ...Backend) AppConfigOption {
	return func(c *AppConfig) {
		c.backends = make([]Backend, len(backends))
		copy(c.backends, backends)
	}
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration.
// API keys are reported as counts.
func (c AppConfig) LogAttrs() []slog.Attr {
	names := make([]string, 0, len(c.backends))
	keys := 0
	for _, b := range c.backends {
		names = append(names, b.name)
		keys += len(b.apiKeys)
	}
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("db_url", c.maskedDBURL()),
		slog.String("log_level", c.logLevel),
		slog.String("strategy", c.strategy),
		slog.String("backends", strings.Join(names, ",")),
		slog.Int("api_keys_count", keys),
		slog.Int("vector_dimension", c.vectorDimension),
		slog.Int("max_batch_size", c.maxBatchSize),
		slog.Int("max_batch_tokens", c.maxBatchTokens),
	}
}

func (c AppConfig) maskedDBURL() string {
	if c.dbURL == "" {
		return "(default)"
	}
	if strings.HasPrefix(c.dbURL, "sqlite:") {
		return c.dbURL
	}
	return "postgres://***@***"
}

// ParseList parses a comma-separated list, dropping blanks.
func ParseList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
