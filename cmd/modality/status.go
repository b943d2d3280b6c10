package main

import (
	"github.com/Veraticus/modality/internal/cli"
	"github.com/Veraticus/modality/internal/model"
	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show chunk index and embedding provider state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			stats := a.provider.Stats()
			return cli.RenderStatus(cmd.OutOrStdout(), cli.Status{
				Loaded:       a.index.Loaded(),
				LoadErr:      a.index.LoadErr(),
				Manifest:     a.index.Manifest(),
				Source:       a.cfg.Index.Source,
				Location:     a.location,
				Model:        a.provider.ModelName(),
				Dimension:    a.provider.Dimension(),
				ChunksA:      a.index.Len(model.CategoryA),
				ChunksB:      a.index.Len(model.CategoryB),
				Skipped:      a.index.Skipped(),
				CacheSize:    stats.CacheSize,
				BackendCalls: stats.BackendCalls,
			})
		},
	}
}
