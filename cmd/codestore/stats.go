package main

import (
	"github.com/spf13/cobra"
)

type statsOutput struct {
	Total              int64            `json:"total"`
	ByKind             map[string]int64 `json:"by_kind"`
	ByFile             map[string]int64 `json:"by_file"`
	AverageChunkLength float64          `json:"average_chunk_length"`
}

func statsCmd(envFile *string) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			stats, err := client.Stats(ctx, owner)
			if err != nil {
				return err
			}

			out := statsOutput{
				Total:              stats.Total,
				ByKind:             make(map[string]int64, len(stats.ByKind)),
				ByFile:             stats.ByFile,
				AverageChunkLength: stats.AverageChunkLength,
			}
			for k, n := range stats.ByKind {
				out.ByKind[string(k)] = n
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Restrict counts to one owner (default: all)")

	return cmd
}
