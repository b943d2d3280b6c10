package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/modality/internal/cli"
	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/evaluation"
	"github.com/Veraticus/modality/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func addThresholdFlags(flags *pflag.FlagSet) {
	flags.Float64("similarity-threshold", 0, "override the similarity threshold")
	flags.Float64("min-confidence", 0, "override the minimum confidence")
	flags.Float64("rule-boost", 0, "override the rule confidence boost")
	flags.Float64("retrieval-floor", 0, "override the retrieval floor")
}

// thresholdsFromFlags applies only the threshold flags the user set.
func thresholdsFromFlags(flags *pflag.FlagSet, base model.ThresholdConfig) model.ThresholdConfig {
	cfg := base
	if flags.Changed("similarity-threshold") {
		v, _ := flags.GetFloat64("similarity-threshold")
		cfg = cfg.WithSimilarityThreshold(v)
	}
	if flags.Changed("min-confidence") {
		v, _ := flags.GetFloat64("min-confidence")
		cfg = cfg.WithMinConfidence(v)
	}
	if flags.Changed("rule-boost") {
		v, _ := flags.GetFloat64("rule-boost")
		cfg = cfg.WithRuleConfidenceBoost(v)
	}
	if flags.Changed("retrieval-floor") {
		v, _ := flags.GetFloat64("retrieval-floor")
		cfg = cfg.WithRetrievalFloor(v)
	}
	return cfg
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Measure accuracy against labelled test cases",
		Long: `Run every test case through the recommendation pipeline and report
accuracy, average confidence and misclassified cases.

With --version the run is stored in the evaluation history and compared with
the previous run, listing regressions and improvements.`,
		RunE: runEvaluate,
	}

	cmd.Flags().String("cases", "", "YAML test case file (required)")
	cmd.Flags().String("version", "", "record the run under this version tag")
	cmd.Flags().Bool("json", false, "print JSON metrics")
	addThresholdFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("cases")

	return cmd
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	casesPath, _ := cmd.Flags().GetString("cases")
	versionTag, _ := cmd.Flags().GetString("version")
	asJSON, _ := cmd.Flags().GetBool("json")

	cases, err := evaluation.LoadTestCases(casesPath)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.engine.IsReady() {
		slog.Warn("Evaluating with keyword rules only", "reason", a.index.LoadErr())
	}

	if versionTag != "" {
		interrupts.SetNote(fmt.Sprintf("Run %s was not recorded.", versionTag))
	}

	cfg := thresholdsFromFlags(cmd.Flags(), a.engine.Thresholds())
	bar := cli.NewProgressBar(len(cases), "Evaluating", nil)
	harness := evaluation.NewHarness(a.engine, slog.Default()).OnProgress(cli.ProgressFunc(bar))
	metrics, err := harness.Evaluate(ctx, cases, cfg)
	_ = bar.Finish()
	if err != nil {
		return err
	}

	var diff *evaluation.RunDiff
	if versionTag != "" {
		store, err := initStorage(ctx, a.cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer func() { _ = store.Close() }()

		_, diff, err = evaluation.NewTracker(store, slog.Default()).Record(ctx, versionTag, metrics)
		if errors.Is(err, common.ErrDuplicateEntry) {
			return common.NewUserError(fmt.Sprintf("version %q is already recorded", versionTag), err)
		}
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, struct {
			Metrics model.Metrics       `json:"metrics"`
			Diff    *evaluation.RunDiff `json:"diff,omitempty"`
		}{metrics, diff})
	}
	if err := cli.RenderMetrics(out, metrics); err != nil {
		return err
	}
	if versionTag == "" {
		return nil
	}
	fmt.Fprintln(out) //nolint:forbidigo // User-facing output
	return cli.RenderRunDiff(out, versionTag, diff)
}

func gridSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grid-search",
		Short: "Find the most accurate threshold combination",
		Long: `Evaluate every combination of the threshold values listed in a YAML grid
file and report the most accurate one. Dimensions left out of the grid keep
their configured value. The engine's own configuration is never changed.`,
		RunE: runGridSearch,
	}

	cmd.Flags().String("cases", "", "YAML test case file (required)")
	cmd.Flags().String("grid", "", "YAML parameter grid file (required)")
	cmd.Flags().Bool("json", false, "print JSON results")
	_ = cmd.MarkFlagRequired("cases")
	_ = cmd.MarkFlagRequired("grid")

	return cmd
}

func runGridSearch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	casesPath, _ := cmd.Flags().GetString("cases")
	gridPath, _ := cmd.Flags().GetString("grid")
	asJSON, _ := cmd.Flags().GetBool("json")

	cases, err := evaluation.LoadTestCases(casesPath)
	if err != nil {
		return err
	}
	grid, err := evaluation.LoadParamGrid(gridPath)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	points := len(grid.Combinations(a.engine.Thresholds()))
	bar := cli.NewProgressBar(points, "Searching", nil)
	harness := evaluation.NewHarness(a.engine, slog.Default()).OnProgress(cli.ProgressFunc(bar))
	result, err := harness.GridSearch(ctx, grid, cases)
	_ = bar.Finish()
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	return cli.RenderGridResult(cmd.OutOrStdout(), result)
}
