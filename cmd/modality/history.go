package main

import (
	"log/slog"

	"github.com/Veraticus/modality/internal/cli"
	"github.com/Veraticus/modality/internal/evaluation"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded evaluation runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, cfg.Database.Path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			return cli.RenderRuns(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().Int("limit", 10, "number of runs to show (0 for all)")
	cmd.AddCommand(historyCompareCmd())

	return cmd
}

func historyCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <from-version> <to-version>",
		Short: "Show cases that changed between two recorded runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, cfg.Database.Path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			diff, err := evaluation.NewTracker(store, slog.Default()).Compare(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return cli.RenderRunDiff(cmd.OutOrStdout(), args[1], diff)
		},
	}
}
