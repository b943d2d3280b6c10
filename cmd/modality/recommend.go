package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Veraticus/modality/internal/cli"
	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/engine"
	"github.com/Veraticus/modality/internal/model"
	"github.com/spf13/cobra"
)

func recommendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recommend [query]",
		Short: "Recommend an approach for a query",
		Long: `Classify a query as cognitive-behavioral (A) or dialectical-behavioral (B),
showing the supporting passages and how the retrieval and keyword classifiers
were reconciled.

With --file, every non-empty line of the file is a query and the batch runs
on a worker pool.`,
		RunE: runRecommend,
	}

	cmd.Flags().String("file", "", "read one query per line from this file (- for stdin)")
	cmd.Flags().Int("workers", engine.DefaultBatchOptions().ParallelWorkers, "parallel workers for --file")
	cmd.Flags().Bool("json", false, "print JSON instead of formatted output")

	return cmd
}

func readQueries(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path) //nolint:gosec // user-supplied query file
		if err != nil {
			return nil, fmt.Errorf("failed to open queries: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var queries []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			queries = append(queries, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queries: %w", err)
	}
	return queries, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

type recommendOutput struct {
	Query string `json:"query"`
	model.Recommendation
}

func runRecommend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	file, _ := cmd.Flags().GetString("file")
	workers, _ := cmd.Flags().GetInt("workers")
	asJSON, _ := cmd.Flags().GetBool("json")

	var queries []string
	switch {
	case file != "":
		var err error
		if queries, err = readQueries(file); err != nil {
			return err
		}
	case len(args) > 0:
		queries = []string{strings.Join(args, " ")}
	}
	if len(queries) == 0 {
		return fmt.Errorf("%w: provide a query or --file", common.ErrMissingConfig)
	}

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var recs []model.Recommendation
	if len(queries) == 1 {
		recs = []model.Recommendation{a.engine.Recommend(ctx, queries[0])}
	} else {
		bar := cli.NewProgressBar(len(queries), "Recommending", nil)
		opts := engine.DefaultBatchOptions()
		opts.ParallelWorkers = workers
		opts.OnResult = cli.ProgressFunc(bar)
		recs = a.engine.RecommendBatch(ctx, queries, opts)
		_ = bar.Finish()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("recommendation canceled: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		results := make([]recommendOutput, len(recs))
		for i, rec := range recs {
			results[i] = recommendOutput{Query: queries[i], Recommendation: rec}
		}
		if len(results) == 1 {
			return writeJSON(out, results[0])
		}
		return writeJSON(out, results)
	}

	for i, rec := range recs {
		if i > 0 {
			fmt.Fprintln(out) //nolint:forbidigo // User-facing output
		}
		if err := cli.RenderRecommendation(out, queries[i], rec); err != nil {
			return err
		}
	}
	return nil
}
