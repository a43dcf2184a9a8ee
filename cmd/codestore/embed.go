package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helixml/codestore/domain/embedding"
)

type embedOutput struct {
	RequestID       string         `json:"request_id"`
	Count           int            `json:"count"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	TokensProcessed int            `json:"tokens_processed"`
	PrimaryBackend  string         `json:"primary_backend"`
	FallbackUsed    bool           `json:"fallback_used"`
	Distribution    map[string]int `json:"backend_distribution"`
	Vectors         [][]float64    `json:"vectors,omitempty"`
}

func embedCmd(envFile *string) *cobra.Command {
	var (
		requestID   string
		strategy    string
		withVectors bool
	)

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Embed lines read from stdin",
		Long: `Read one text per non-blank line from stdin, embed the batch through the
configured backends and print a JSON summary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			texts, err := readLines(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if len(texts) == 0 {
				return fmt.Errorf("no input: provide one text per line on stdin")
			}

			cfg, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			client, logger, err := openClient(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)

			if strategy != "" {
				s, err := embedding.ParseStrategy(strategy)
				if err != nil {
					return err
				}
				client.SetStrategy(s)
			}

			result, err := client.GenerateEmbeddings(ctx, texts, requestID)
			if err != nil {
				return err
			}

			out := embedOutput{
				RequestID:       result.RequestID(),
				Count:           result.Len(),
				Succeeded:       result.SuccessCount(),
				Failed:          result.FailureCount(),
				TokensProcessed: result.TokensProcessed(),
				PrimaryBackend:  result.PrimaryBackend(),
				FallbackUsed:    result.FallbackUsed(),
				Distribution:    result.BackendDistribution(),
			}
			if withVectors {
				out.Vectors = make([][]float64, result.Len())
				for i, v := range result.Embeddings() {
					if v != nil {
						out.Vectors[i] = v.Values()
					}
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&requestID, "request-id", "", "Request id to log with (default: generated)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Override the configured strategy")
	cmd.Flags().BoolVar(&withVectors, "vectors", false, "Include the vectors in the output")

	return cmd
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return lines, nil
}
