// Package main is the entry point for the codestore CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/helixml/codestore"
	"github.com/helixml/codestore/internal/config"
	"github.com/helixml/codestore/internal/log"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "codestore",
		Short: "Multi-backend embedding and code retrieval store",
		Long: `codestore embeds text through one or more embedding backends, stores the
vectors next to their source metadata, and answers hybrid similarity queries.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (--env-file, or .env in the current directory)
  3. Environment variables
  4. The backends file named by BACKENDS_FILE
  5. Command line flags`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")

	cmd.AddCommand(serveCmd(&envFile))
	cmd.AddCommand(embedCmd(&envFile))
	cmd.AddCommand(searchCmd(&envFile))
	cmd.AddCommand(statsCmd(&envFile))
	cmd.AddCommand(downloadModelCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

// loadConfig loads configuration from .env file and environment variables.
func loadConfig(envFile string) (config.AppConfig, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openClient creates a client for cfg, logging to stderr.
func openClient(ctx context.Context, cfg config.AppConfig) (*codestore.Client, *slog.Logger, error) {
	logger := log.Configure(cfg)
	client, err := codestore.New(ctx,
		codestore.WithConfig(cfg),
		codestore.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create codestore client: %w", err)
	}
	return client, logger, nil
}

func closeClient(client *codestore.Client, logger *slog.Logger) {
	if err := client.Close(); err != nil {
		logger.Error("failed to close codestore client", slog.String("error", err.Error()))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
