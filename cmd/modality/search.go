package main

import (
	"fmt"
	"strings"

	"github.com/Veraticus/modality/internal/cli"
	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/model"
	"github.com/spf13/cobra"
)

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find reference passages similar to a query",
		Long: `Search the chunk index for passages similar to the query, best first.
Only passages above the configured similarity threshold are shown.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSearch,
	}

	cmd.Flags().String("category", "", "restrict to one category (A, B, CBT, DBT)")
	cmd.Flags().Int("limit", 5, "maximum number of passages")
	cmd.Flags().Bool("json", false, "print JSON instead of a table")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")
	categoryFlag, _ := cmd.Flags().GetString("category")

	var category model.Category
	if categoryFlag != "" {
		parsed, err := model.ParseCategory(categoryFlag)
		if err != nil {
			return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
		}
		category = parsed
	}

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.engine.IsReady() {
		return common.NewUserError("search needs a loaded chunk index", a.index.LoadErr())
	}

	results, err := a.engine.SearchSimilar(ctx, strings.Join(args, " "), category, limit)
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), results)
	}
	return cli.RenderSearchResults(cmd.OutOrStdout(), category, results)
}
