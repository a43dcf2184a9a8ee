package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixml/codestore/infrastructure/api"
	"github.com/helixml/codestore/internal/config"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(envFile *string) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health and metrics over HTTP",
		Long: `Serve /healthz with per-backend request counters and /metrics in the
Prometheus exposition format.

Environment variables:
  HOST                         Server host to bind to (default: 0.0.0.0)
  PORT                         Server port to listen on (default: 8080)
  DATA_DIR                     Data directory (default: ~/.codestore)
  DB_URL                       Database URL (default: sqlite:///{data_dir}/codestore.db)
  LOG_LEVEL                    Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                   Log format: pretty, json (default: pretty)
  LOG_FAILURE_INTERVAL         Seconds between repeated backend failure logs (default: 5)
  BACKENDS_FILE                YAML file listing the embedding backends
  VECTOR_DIMENSION             Dimension of stored vectors (default: 1536)

  EMBEDDING_*                  Orchestration
    STRATEGY                   race, round_robin, failover, content_aware (default: failover)
    MAX_BATCH_SIZE             Texts per batch (default: 32)
    MAX_BATCH_TOKENS           Estimated tokens per batch (default: 8192)
    TIMEOUT                    Per-invocation timeout in seconds (default: 60)
    BACKOFF_BASE               First retry delay in seconds (default: 0.5)

  EMBEDDING_ENDPOINT_*         Single OpenAI-compatible backend when no BACKENDS_FILE is set
    BASE_URL, MODEL, API_KEYS (comma-separated), TARGET_DIMENSION, CACHE_SIZE, HTTP_CACHE_DIR

  STORE_RETRY_ATTEMPTS         Attempts per store operation (default: 3)
  STORE_RETRY_BASE_DELAY       First store retry delay in seconds (default: 0.1)

  RETRIEVAL_*                  OVERSAMPLE, ENTITY_BOOST, LEXICAL_WEIGHT, DIVERSIFICATION_THRESHOLD,
                               IMPLEMENTATION_BOOST, LONG_TEXT_BONUS, LONG_TEXT_CHARS`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *envFile, host, port)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8080)")

	return cmd
}

func runServe(ctx context.Context, envFile, host string, port int) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	cfg = applyServeOverrides(cfg, host, port)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, logger, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	server := api.NewServer(cfg.Addr(), logger)
	server.MountHealth(client)
	server.MountMetrics(client.Metrics())
	server.Router().Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"name":"codestore","version":"%s"}`, version)
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
		}
	}()

	if err := server.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// applyServeOverrides applies command line flag overrides to the config.
func applyServeOverrides(cfg config.AppConfig, host string, port int) config.AppConfig {
	var opts []config.AppConfigOption

	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}

	return cfg.Apply(opts...)
}
