package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "", cfg.DataDir)
	assert.Equal(t, "", cfg.DBURL)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Equal(t, "", cfg.BackendsFile)
	assert.Equal(t, "", cfg.Embedding.Strategy)
	assert.False(t, cfg.Embedding.Endpoint.IsConfigured())
}

func TestEnvDefaults_MatchConfigDefaults(t *testing.T) {
	// Struct tag defaults must be literals, so this keeps them in step with the constants.
	clearEnvVars(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultFailureLogInterval, seconds(cfg.FailureLogInterval))
	assert.Equal(t, DefaultVectorDimension, cfg.VectorDimension)

	assert.Equal(t, DefaultMaxBatchSize, cfg.Embedding.MaxBatchSize)
	assert.Equal(t, DefaultMaxBatchTokens, cfg.Embedding.MaxBatchTokens)
	assert.Equal(t, DefaultEmbeddingTimeout, seconds(cfg.Embedding.Timeout))
	assert.Equal(t, DefaultEmbeddingBackoffBase, seconds(cfg.Embedding.BackoffBase))

	assert.Equal(t, DefaultStoreRetryAttempts, cfg.Store.RetryAttempts)
	assert.Equal(t, DefaultStoreRetryBaseDelay, seconds(cfg.Store.RetryBaseDelay))

	assert.Equal(t, DefaultRetrievalOversample, cfg.Retrieval.Oversample)
	assert.Equal(t, DefaultEntityBoost, cfg.Retrieval.EntityBoost)
	assert.Equal(t, DefaultLexicalWeight, cfg.Retrieval.LexicalWeight)
	assert.Equal(t, DefaultDiversificationThreshold, cfg.Retrieval.DiversificationThreshold)
	assert.Equal(t, DefaultImplementationBoost, cfg.Retrieval.ImplementationBoost)
	assert.Equal(t, DefaultLongTextBonus, cfg.Retrieval.LongTextBonus)
	assert.Equal(t, DefaultLongTextChars, cfg.Retrieval.LongTextChars)
}

func TestLoadFromEnv_OverrideValues(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("EMBEDDING_STRATEGY", "race")
	t.Setenv("EMBEDDING_MAX_BATCH_SIZE", "8")
	t.Setenv("EMBEDDING_TIMEOUT", "2.5")
	t.Setenv("STORE_RETRY_ATTEMPTS", "5")
	t.Setenv("RETRIEVAL_OVERSAMPLE", "3")
	t.Setenv("VECTOR_DIMENSION", "384")

	env, err := LoadFromEnv()
	require.NoError(t, err)
	cfg := env.ToAppConfig()

	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
	assert.Equal(t, LogFormatJSON, cfg.LogFormat())
	assert.Equal(t, "race", cfg.Strategy())
	assert.Equal(t, 8, cfg.MaxBatchSize())
	assert.Equal(t, DefaultMaxBatchTokens, cfg.MaxBatchTokens())
	assert.Equal(t, 2500*time.Millisecond, cfg.EmbeddingTimeout())
	assert.Equal(t, 5, cfg.StoreRetryAttempts())
	assert.Equal(t, 3, cfg.Retrieval().Oversample())
	assert.Equal(t, 384, cfg.VectorDimension())
}

func TestLoadFromEnv_Endpoint(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("EMBEDDING_ENDPOINT_BASE_URL", "https://api.example.com/v1")
	t.Setenv("EMBEDDING_ENDPOINT_MODEL", "text-embedding-3-small")
	t.Setenv("EMBEDDING_ENDPOINT_API_KEYS", "k1, k2,,k3")
	t.Setenv("EMBEDDING_ENDPOINT_CACHE_SIZE", "100")
	t.Setenv("EMBEDDING_TIMEOUT", "10")

	env, err := LoadFromEnv()
	require.NoError(t, err)
	cfg := env.ToAppConfig()

	backends := cfg.Backends()
	require.Len(t, backends, 1)
	b := backends[0]
	assert.Equal(t, DefaultBackendName, b.Name())
	assert.Equal(t, "openai", b.Type())
	assert.True(t, b.Enabled())
	assert.Equal(t, "https://api.example.com/v1", b.BaseURL())
	assert.Equal(t, "text-embedding-3-small", b.Model())
	assert.Equal(t, []string{"k1", "k2", "k3"}, b.APIKeys())
	assert.Equal(t, 100, b.CacheSize())
	assert.Equal(t, 10*time.Second, b.Timeout())
}

func TestLoadFromEnvWithPrefix(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("CODESTORE_PORT", "7000")

	cfg, err := LoadFromEnvWithPrefix("CODESTORE")
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
}

func TestParseLogFormat(t *testing.T) {
	tests := []struct {
		input string
		want  LogFormat
	}{
		{"json", LogFormatJSON},
		{"JSON", LogFormatJSON},
		{"pretty", LogFormatPretty},
		{"", LogFormatPretty},
		{"other", LogFormatPretty},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogFormat(tt.input))
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := `DATA_DIR=/from/dotenv
LOG_LEVEL=DEBUG
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	clearEnvVars(t)

	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "/from/dotenv", os.Getenv("DATA_DIR"))
	assert.Equal(t, "DEBUG", os.Getenv("LOG_LEVEL"))
}

func TestLoadDotEnv_NonExistent(t *testing.T) {
	clearEnvVars(t)
	assert.NoError(t, LoadDotEnv("/nonexistent/.env"))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := `DATA_DIR=/config/data
LOG_LEVEL=WARN
EMBEDDING_ENDPOINT_MODEL=test-embedding
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	clearEnvVars(t)

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)

	assert.Equal(t, "/config/data", cfg.DataDir())
	assert.Equal(t, "sqlite:///"+filepath.Join("/config/data", "codestore.db"), cfg.DBURL())
	assert.Equal(t, "WARN", cfg.LogLevel())
	require.Len(t, cfg.Backends(), 1)
	assert.Equal(t, "test-embedding", cfg.Backends()[0].Model())
}

func TestLoadConfig_BackendsFile(t *testing.T) {
	dir := t.TempDir()
	backendsFile := filepath.Join(dir, "backends.yaml")
	content := `strategy: content_aware
routing:
  code_backend: local
  text_backend: remote
  min_code_matches: 2
backends:
  - name: remote
    api_keys: ["${TEST_KEY_A}", "${TEST_KEY_B}"]
  - name: local
    type: local
    model_dir: /models
    priority: 1
`
	require.NoError(t, os.WriteFile(backendsFile, []byte(content), 0o644))

	clearEnvVars(t)
	t.Setenv("BACKENDS_FILE", backendsFile)
	t.Setenv("TEST_KEY_A", "secret-a")
	t.Setenv("TEST_KEY_B", "")
	t.Setenv("EMBEDDING_ENDPOINT_MODEL", "ignored")

	cfg, err := LoadConfig(filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "content_aware", cfg.Strategy())
	assert.Equal(t, "local", cfg.Routing().CodeBackend())
	assert.Equal(t, 2, cfg.Routing().MinCodeMatches())

	backends := cfg.Backends()
	require.Len(t, backends, 2, "the file replaces the endpoint variables")
	assert.Equal(t, "remote", backends[0].Name())
	assert.Equal(t, []string{"secret-a"}, backends[0].APIKeys())
	assert.Equal(t, "local", backends[1].Type())
	assert.Equal(t, "/models", backends[1].ModelDir())
}

func TestLoadConfig_EnvStrategyWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	backendsFile := filepath.Join(dir, "backends.yaml")
	require.NoError(t, os.WriteFile(backendsFile, []byte("strategy: race\n"), 0o644))

	clearEnvVars(t)
	t.Setenv("BACKENDS_FILE", backendsFile)
	t.Setenv("EMBEDDING_STRATEGY", "round_robin")

	cfg, err := LoadConfig(filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "round_robin", cfg.Strategy())
}

func TestLoadConfig_MissingBackendsFile(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("BACKENDS_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

// clearEnvVars unsets every variable the config reads, restoring them when
// the test ends.
func clearEnvVars(t *testing.T) {
	t.Helper()

	vars := []string{
		"HOST",
		"PORT",
		"DATA_DIR",
		"DB_URL",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"LOG_FAILURE_INTERVAL",
		"BACKENDS_FILE",
		"VECTOR_DIMENSION",
		"EMBEDDING_STRATEGY",
		"EMBEDDING_MAX_BATCH_SIZE",
		"EMBEDDING_MAX_BATCH_TOKENS",
		"EMBEDDING_TIMEOUT",
		"EMBEDDING_BACKOFF_BASE",
		"EMBEDDING_ENDPOINT_BASE_URL",
		"EMBEDDING_ENDPOINT_MODEL",
		"EMBEDDING_ENDPOINT_API_KEYS",
		"EMBEDDING_ENDPOINT_TARGET_DIMENSION",
		"EMBEDDING_ENDPOINT_CACHE_SIZE",
		"EMBEDDING_ENDPOINT_HTTP_CACHE_DIR",
		"STORE_RETRY_ATTEMPTS",
		"STORE_RETRY_BASE_DELAY",
		"RETRIEVAL_OVERSAMPLE",
		"RETRIEVAL_ENTITY_BOOST",
		"RETRIEVAL_LEXICAL_WEIGHT",
		"RETRIEVAL_DIVERSIFICATION_THRESHOLD",
		"RETRIEVAL_IMPLEMENTATION_BOOST",
		"RETRIEVAL_LONG_TEXT_BONUS",
		"RETRIEVAL_LONG_TEXT_CHARS",
		"CODESTORE_PORT",
	}

	for _, v := range vars {
		t.Setenv(v, "")
		_ = os.Unsetenv(v)
	}
}
