package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
// Nested structs use an underscore delimiter (e.g. EMBEDDING_MAX_BATCH_SIZE).
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: PORT (default: 8080)
	Port int `envconfig:"PORT" default:"8080"`

	// DataDir is the data directory path.
	// Env: DATA_DIR
	// Default: ~/.codestore
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL is the database connection URL.
	// Env: DB_URL
	// Default: sqlite:///{data_dir}/codestore.db
	DBURL string `envconfig:"DB_URL"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// FailureLogInterval is the minimum gap, in seconds, between repeated
	// failure logs for one backend.
	// Env: LOG_FAILURE_INTERVAL (default: 5)
	FailureLogInterval float64 `envconfig:"LOG_FAILURE_INTERVAL" default:"5"`

	// BackendsFile is a YAML file listing the embedding backends.
	// Env: BACKENDS_FILE
	BackendsFile string `envconfig:"BACKENDS_FILE"`

	// VectorDimension is the dimension of stored vectors.
	// Env: VECTOR_DIMENSION (default: 1536)
	VectorDimension int `envconfig:"VECTOR_DIMENSION" default:"1536"`

	// Embedding configures batching and invocation.
	Embedding EmbeddingEnv `envconfig:"EMBEDDING"`

	// Store configures the store retry policy.
	Store StoreEnv `envconfig:"STORE"`

	// Retrieval configures the retrieval engine.
	Retrieval RetrievalEnv `envconfig:"RETRIEVAL"`
}

// EmbeddingEnv holds environment configuration for embedding generation.
type EmbeddingEnv struct {
	// Strategy is the orchestration strategy. Overrides the backends file.
	// Env: EMBEDDING_STRATEGY
	Strategy string `envconfig:"STRATEGY"`

	// MaxBatchSize is the maximum texts per batch.
	// Env: EMBEDDING_MAX_BATCH_SIZE (default: 32)
	MaxBatchSize int `envconfig:"MAX_BATCH_SIZE" default:"32"`

	// MaxBatchTokens is the maximum estimated tokens per batch.
	// Env: EMBEDDING_MAX_BATCH_TOKENS (default: 8192)
	MaxBatchTokens int `envconfig:"MAX_BATCH_TOKENS" default:"8192"`

	// Timeout is the per-invocation timeout in seconds.
	// Env: EMBEDDING_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// BackoffBase is the first retry delay in seconds.
	// Env: EMBEDDING_BACKOFF_BASE (default: 0.5)
	BackoffBase float64 `envconfig:"BACKOFF_BASE" default:"0.5"`

	// Endpoint configures a single backend when no backends file is given.
	Endpoint EndpointEnv `envconfig:"ENDPOINT"`
}

// EndpointEnv holds environment configuration for a single OpenAI-compatible
// backend.
type EndpointEnv struct {
	// BaseURL is the base URL for the endpoint.
	// Env: EMBEDDING_ENDPOINT_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// Model is the model identifier.
	// Env: EMBEDDING_ENDPOINT_MODEL
	Model string `envconfig:"MODEL"`

	// APIKeys is a comma-separated credential pool.
	// Env: EMBEDDING_ENDPOINT_API_KEYS
	APIKeys string `envconfig:"API_KEYS"`

	// TargetDimension projects vectors to this many dimensions.
	// Env: EMBEDDING_ENDPOINT_TARGET_DIMENSION
	TargetDimension int `envconfig:"TARGET_DIMENSION"`

	// CacheSize is the number of vectors cached in memory.
	// Env: EMBEDDING_ENDPOINT_CACHE_SIZE
	CacheSize int `envconfig:"CACHE_SIZE"`

	// HTTPCacheDir caches successful responses on disk.
	// Env: EMBEDDING_ENDPOINT_HTTP_CACHE_DIR
	HTTPCacheDir string `envconfig:"HTTP_CACHE_DIR"`
}

// StoreEnv holds environment configuration for the store.
type StoreEnv struct {
	// RetryAttempts is the attempts per store operation.
	// Env: STORE_RETRY_ATTEMPTS (default: 3)
	RetryAttempts int `envconfig:"RETRY_ATTEMPTS" default:"3"`

	// RetryBaseDelay is the first retry delay in seconds.
	// Env: STORE_RETRY_BASE_DELAY (default: 0.1)
	RetryBaseDelay float64 `envconfig:"RETRY_BASE_DELAY" default:"0.1"`
}

// RetrievalEnv holds environment configuration for retrieval.
type RetrievalEnv struct {
	// Env: RETRIEVAL_OVERSAMPLE (default: 5)
	Oversample int `envconfig:"OVERSAMPLE" default:"5"`

	// Env: RETRIEVAL_ENTITY_BOOST (default: 0.15)
	EntityBoost float64 `envconfig:"ENTITY_BOOST" default:"0.15"`

	// Env: RETRIEVAL_LEXICAL_WEIGHT (default: 0.1)
	LexicalWeight float64 `envconfig:"LEXICAL_WEIGHT" default:"0.1"`

	// Env: RETRIEVAL_DIVERSIFICATION_THRESHOLD (default: 0.3)
	DiversificationThreshold float64 `envconfig:"DIVERSIFICATION_THRESHOLD" default:"0.3"`

	// Env: RETRIEVAL_IMPLEMENTATION_BOOST (default: 0.1)
	ImplementationBoost float64 `envconfig:"IMPLEMENTATION_BOOST" default:"0.1"`

	// Env: RETRIEVAL_LONG_TEXT_BONUS (default: 0.05)
	LongTextBonus float64 `envconfig:"LONG_TEXT_BONUS" default:"0.05"`

	// Env: RETRIEVAL_LONG_TEXT_CHARS (default: 800)
	LongTextChars int `envconfig:"LONG_TEXT_CHARS" default:"800"`
}

// LoadFromEnv loads configuration from environment variables, without prefix.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix.
// For example, prefix "CODESTORE" requires CODESTORE_DATA_DIR instead of DATA_DIR.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig. Backends come from
// the endpoint variables; a backends file is applied separately.
func (e EnvConfig) ToAppConfig() AppConfig {
	cfg := NewAppConfig()

	if e.Host != "" {
		cfg = applyOption(cfg, WithHost(e.Host))
	}
	if e.Port != 0 {
		cfg = applyOption(cfg, WithPort(e.Port))
	}
	if e.DataDir != "" {
		cfg = applyOption(cfg, WithDataDir(e.DataDir))
	}
	if e.DBURL != "" {
		cfg = applyOption(cfg, WithDBURL(e.DBURL))
	}
	if e.LogLevel != "" {
		cfg = applyOption(cfg, WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		cfg = applyOption(cfg, WithLogFormat(parseLogFormat(e.LogFormat)))
	}
	cfg = applyOption(cfg, WithFailureLogInterval(seconds(e.FailureLogInterval)))
	cfg = applyOption(cfg, WithVectorDimension(e.VectorDimension))

	if e.Embedding.Strategy != "" {
		cfg = applyOption(cfg, WithStrategy(e.Embedding.Strategy))
	}
	cfg = applyOption(cfg, WithBatchLimits(e.Embedding.MaxBatchSize, e.Embedding.MaxBatchTokens))
	cfg = applyOption(cfg, WithEmbeddingTimeout(seconds(e.Embedding.Timeout)))
	cfg = applyOption(cfg, WithBackoffBase(seconds(e.Embedding.BackoffBase)))
	if e.Embedding.Endpoint.IsConfigured() {
		cfg = applyOption(cfg, WithBackends(e.Embedding.Endpoint.ToBackend(seconds(e.Embedding.Timeout))))
	}

	cfg = applyOption(cfg, WithStoreRetry(e.Store.RetryAttempts, seconds(e.Store.RetryBaseDelay)))
	cfg = applyOption(cfg, WithRetrieval(e.Retrieval.ToRetrieval()))

	return cfg
}

// applyOption applies an option to the config.
func applyOption(cfg AppConfig, opt AppConfigOption) AppConfig {
	opt(&cfg)
	return cfg
}

// IsConfigured returns true if the endpoint names a model or a base URL.
func (e EndpointEnv) IsConfigured() bool {
	return e.Model != "" || e.BaseURL != ""
}

// ToBackend converts EndpointEnv to a Backend named "openai".
func (e EndpointEnv) ToBackend(timeout time.Duration) Backend {
	return NewBackendWithOptions(DefaultBackendName,
		WithModel(e.Model),
		WithBaseURL(e.BaseURL),
		WithAPIKeys(ParseList(e.APIKeys)...),
		WithTargetDimension(e.TargetDimension),
		WithCacheSize(e.CacheSize),
		WithHTTPCacheDir(e.HTTPCacheDir),
		WithTimeout(timeout),
	)
}

// ToRetrieval converts RetrievalEnv to Retrieval.
func (r RetrievalEnv) ToRetrieval() Retrieval {
	return NewRetrieval().
		WithOversample(r.Oversample).
		WithRanking(r.EntityBoost, r.LexicalWeight, r.DiversificationThreshold, r.ImplementationBoost).
		WithLongText(r.LongTextBonus, r.LongTextChars)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// parseLogFormat parses a log format string.
func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}
