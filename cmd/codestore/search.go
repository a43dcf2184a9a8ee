package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helixml/codestore/domain/record"
	"github.com/helixml/codestore/domain/search"
)

type searchHit struct {
	ID         string  `json:"id"`
	Score      float64 `json:"score"`
	Kind       string  `json:"kind"`
	EntityName string  `json:"entity_name,omitempty"`
	FilePath   string  `json:"file_path,omitempty"`
	Backend    string  `json:"backend"`
	Model      string  `json:"model"`
	Text       string  `json:"text"`
}

func searchCmd(envFile *string) *cobra.Command {
	var (
		topK         int
		owner        string
		paths        []string
		excludeKinds []string
		backend      string
		model        string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search stored records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			filters, err := buildFilters(owner, paths, excludeKinds, backend, model)
			if err != nil {
				return err
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

			results, err := client.Search(ctx, query, topK, filters)
			if err != nil {
				return err
			}

			hits := make([]searchHit, 0, len(results))
			for _, r := range results {
				rec := r.Record()
				hits = append(hits, searchHit{
					ID:         rec.ID(),
					Score:      r.Score(),
					Kind:       string(rec.Kind()),
					EntityName: rec.EntityName(),
					FilePath:   rec.FilePathRelative(),
					Backend:    rec.BackendName(),
					Model:      rec.ModelName(),
					Text:       rec.SourceText(),
				})
			}
			return writeJSON(cmd.OutOrStdout(), hits)
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 10, "Maximum number of results")
	cmd.Flags().StringVar(&owner, "owner", "", "Only records of this owner")
	cmd.Flags().StringArrayVar(&paths, "path", nil, "Only records under this relative file path (repeatable)")
	cmd.Flags().StringArrayVar(&excludeKinds, "exclude-kind", nil, "Drop records of this kind: chunk, summary (repeatable)")
	cmd.Flags().StringVar(&backend, "backend", "", "Only records embedded by this backend")
	cmd.Flags().StringVar(&model, "model", "", "Only records embedded by this model")

	return cmd
}

func buildFilters(owner string, paths, excludeKinds []string, backend, model string) (search.Filters, error) {
	var opts []search.FiltersOption
	if owner != "" {
		opts = append(opts, search.WithOwnerID(owner))
	}
	if len(paths) > 0 {
		opts = append(opts, search.WithFilePaths(paths...))
	}
	if len(excludeKinds) > 0 {
		kinds := make([]record.Kind, 0, len(excludeKinds))
		for _, k := range excludeKinds {
			kind := record.Kind(strings.ToLower(strings.TrimSpace(k)))
			if !kind.Valid() {
				return search.Filters{}, fmt.Errorf("unknown record kind %q", k)
			}
			kinds = append(kinds, kind)
		}
		opts = append(opts, search.WithExcludeKinds(kinds...))
	}
	if backend != "" {
		opts = append(opts, search.WithBackend(backend))
	}
	if model != "" {
		opts = append(opts, search.WithModel(model))
	}
	return search.NewFilters(opts...), nil
}
