package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Veraticus/modality/internal/evaluation"
	"github.com/Veraticus/modality/internal/model"
	"github.com/charmbracelet/lipgloss"
)

const snippetWidth = 72

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))

// Snippet collapses whitespace and truncates text to width runes.
func Snippet(text string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if width <= 0 || len(runes) <= width {
		return text
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}

type table struct {
	tw  *tabwriter.Writer
	err error
}

func newTable(w io.Writer) *table {
	return &table{tw: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
}

func (t *table) header(cols ...string) {
	styled := make([]string, len(cols))
	rules := make([]string, len(cols))
	for i, c := range cols {
		styled[i] = headerStyle.Render(c)
		rules[i] = strings.Repeat("─", max(len(c), 4))
	}
	t.row(styled...)
	t.row(rules...)
}

func (t *table) row(cols ...string) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintln(t.tw, strings.Join(cols, "\t"))
}

func (t *table) flush() error {
	if t.err != nil {
		return fmt.Errorf("failed to write table: %w", t.err)
	}
	if err := t.tw.Flush(); err != nil {
		return fmt.Errorf("failed to flush table: %w", err)
	}
	return nil
}

func writeLines(w io.Writer, lines ...string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

// RenderRecommendation prints a recommendation and how it was reached.
func RenderRecommendation(w io.Writer, query string, rec model.Recommendation) error {
	ex := rec.Explanation
	var body strings.Builder
	fmt.Fprintf(&body, "%s %s\n", BoldStyle.Render("Query:"), Snippet(query, snippetWidth))
	fmt.Fprintf(&body, "%s %s\n", BoldStyle.Render("Approach:"), FormatCategory(rec.Category))
	fmt.Fprintf(&body, "%s %s\n", BoldStyle.Render("Confidence:"), FormatConfidence(rec.Confidence))
	fmt.Fprintf(&body, "%s %s (%s)\n", BoldStyle.Render("Decided by:"), ex.Chosen, ex.Reason)
	if ex.Detail != "" {
		body.WriteString(SubtleStyle.Render(ex.Detail) + "\n")
	}

	body.WriteString("\n")
	fmt.Fprintf(&body, "Rules:  %s at %s", FormatCategory(ex.Rule.Category), FormatConfidence(ex.Rule.Confidence))
	if matched := append(append([]string{}, ex.Rule.MatchedA...), ex.Rule.MatchedB...); len(matched) > 0 {
		fmt.Fprintf(&body, " %s", SubtleStyle.Render("["+strings.Join(matched, ", ")+"]"))
	}
	body.WriteString("\n")
	if v := ex.Vector; v != nil {
		fmt.Fprintf(&body, "Vector: %s at %s %s\n", FormatCategory(v.Category), FormatConfidence(v.Confidence),
			SubtleStyle.Render(fmt.Sprintf("(A %d hits, mean %.2f; B %d hits, mean %.2f)", v.HitsA, v.MeanA, v.HitsB, v.MeanB)))
	} else {
		body.WriteString("Vector: " + SubtleStyle.Render("not consulted") + "\n")
	}

	if err := writeLines(w, RenderBox(CompassIcon+" Recommendation", strings.TrimRight(body.String(), "\n"))); err != nil {
		return err
	}
	if len(rec.SupportingChunks) == 0 {
		return nil
	}
	if err := writeLines(w, "", BoldStyle.Render(BookIcon+" Supporting passages")); err != nil {
		return err
	}
	return renderChunks(w, rec.SupportingChunks)
}

func renderChunks(w io.Writer, chunks []model.ScoredChunk) error {
	t := newTable(w)
	t.header("Score", "Category", "Source", "Text")
	for _, sc := range chunks {
		source := sc.Chunk.Metadata.Source
		if sc.Chunk.Metadata.Page > 0 {
			source = fmt.Sprintf("%s p.%d", source, sc.Chunk.Metadata.Page)
		}
		t.row(
			fmt.Sprintf("%.3f", sc.Similarity),
			string(sc.Chunk.Metadata.Category),
			source,
			Snippet(sc.Chunk.Text, snippetWidth),
		)
	}
	return t.flush()
}

// RenderSearchResults prints similarity search hits. An empty category means
// both were searched.
func RenderSearchResults(w io.Writer, category model.Category, results []model.ScoredChunk) error {
	scope := "either category"
	if category != "" {
		scope = category.Label()
	}
	if len(results) == 0 {
		return writeLines(w, FormatInfo(fmt.Sprintf("No passages from %s above the similarity threshold.", scope)))
	}
	if err := writeLines(w, FormatTitle(fmt.Sprintf("%d passages from %s", len(results), scope))); err != nil {
		return err
	}
	return renderChunks(w, results)
}

// Status summarises the loaded index and embedding provider.
type Status struct {
	LoadErr      error
	Manifest     *model.Manifest
	Source       string
	Location     string
	Model        string
	Dimension    int
	ChunksA      int
	ChunksB      int
	Skipped      int
	CacheSize    int
	BackendCalls int64
	Loaded       bool
}

// RenderStatus prints index and provider state.
func RenderStatus(w io.Writer, s Status) error {
	lines := []string{FormatTitle("Modality status")}
	if s.Loaded {
		lines = append(lines, FormatSuccess(fmt.Sprintf("Index loaded from %s %s", s.Source, s.Location)))
	} else {
		msg := fmt.Sprintf("Index not loaded from %s %s", s.Source, s.Location)
		if s.LoadErr != nil {
			msg += ": " + s.LoadErr.Error()
		}
		lines = append(lines, FormatWarning(msg), SubtleStyle.Render("Recommendations fall back to keyword rules."))
	}
	if err := writeLines(w, lines...); err != nil {
		return err
	}

	t := newTable(w)
	t.row("Embedding model", s.Model)
	t.row("Dimension", fmt.Sprintf("%d", s.Dimension))
	if m := s.Manifest; m != nil {
		t.row("Dataset model", m.EmbeddingModel)
		t.row("Dataset created", m.CreatedAt.Format("2006-01-02 15:04"))
	}
	t.row("Chunks (A)", fmt.Sprintf("%d", s.ChunksA))
	t.row("Chunks (B)", fmt.Sprintf("%d", s.ChunksB))
	t.row("Skipped", fmt.Sprintf("%d", s.Skipped))
	t.row("Cached embeddings", fmt.Sprintf("%d", s.CacheSize))
	t.row("Backend calls", fmt.Sprintf("%d", s.BackendCalls))
	return t.flush()
}

// RenderMetrics prints an evaluation summary and the failed cases.
func RenderMetrics(w io.Writer, m model.Metrics) error {
	summary := fmt.Sprintf("%s %d/%d correct (%s), average confidence %s\n%s",
		ChartIcon, m.Correct, m.Total,
		FormatConfidence(m.Accuracy), FormatConfidence(m.AvgConfidence),
		SubtleStyle.Render(m.Config.String()))
	if err := writeLines(w, RenderBox("Evaluation", summary)); err != nil {
		return err
	}

	var failed []model.CaseResult
	for _, r := range m.Results {
		if !r.Correct {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return writeLines(w, FormatSuccess("Every case matched."))
	}

	if err := writeLines(w, "", BoldStyle.Render(fmt.Sprintf("%s %d misclassified", ErrorIcon, len(failed)))); err != nil {
		return err
	}
	t := newTable(w)
	t.header("Case", "Expected", "Predicted", "Source", "Confidence", "Query")
	for _, r := range failed {
		t.row(r.CaseID, string(r.Expected), string(r.Predicted), string(r.Source),
			fmt.Sprintf("%.2f", r.Confidence), Snippet(r.Query, 48))
	}
	return t.flush()
}

// RenderGridResult prints every grid point and marks the best one.
func RenderGridResult(w io.Writer, res evaluation.GridResult) error {
	if err := writeLines(w, FormatTitle(fmt.Sprintf("Grid search over %d configurations", len(res.All)))); err != nil {
		return err
	}
	t := newTable(w)
	t.header("", "Similarity", "Min conf", "Boost", "Floor", "Accuracy", "Avg conf")
	for _, p := range res.All {
		mark := ""
		if p.Config == res.Best {
			mark = SuccessIcon
		}
		t.row(mark,
			fmt.Sprintf("%.2f", p.Config.SimilarityThreshold),
			fmt.Sprintf("%.2f", p.Config.MinConfidence),
			fmt.Sprintf("%.2f", p.Config.RuleConfidenceBoost),
			fmt.Sprintf("%.2f", p.Config.RetrievalFloor),
			fmt.Sprintf("%.1f%% (%d/%d)", p.Accuracy*100, p.Correct, p.Total),
			fmt.Sprintf("%.2f", p.AvgConfidence))
	}
	if err := t.flush(); err != nil {
		return err
	}
	return writeLines(w, "", FormatSuccess(fmt.Sprintf("Best: %s at %.1f%%", res.Best, res.BestAccuracy*100)))
}

// RenderRunDiff prints how a run moved relative to the previous one.
func RenderRunDiff(w io.Writer, version string, diff *evaluation.RunDiff) error {
	if diff == nil {
		return writeLines(w, FormatInfo(fmt.Sprintf("Recorded %s as the first run.", version)))
	}
	lines := []string{
		FormatInfo(fmt.Sprintf("Compared %s with %s", version, diff.PreviousVersion)),
		fmt.Sprintf("Accuracy %s, average confidence %s",
			FormatDelta(diff.AccuracyDelta), FormatDelta(diff.AvgConfidenceDelta)),
	}
	if !diff.Changed() {
		lines = append(lines, SubtleStyle.Render("No case changed outcome."))
		return writeLines(w, lines...)
	}
	if err := writeLines(w, lines...); err != nil {
		return err
	}

	t := newTable(w)
	t.header("", "Case", "Expected", "Before", "After", "Query")
	for _, c := range diff.Regressions {
		t.row(ErrorStyle.Render(DownIcon), c.CaseID, string(c.Expected), string(c.Before), string(c.After), Snippet(c.Query, 48))
	}
	for _, c := range diff.Improvements {
		t.row(SuccessStyle.Render(UpIcon), c.CaseID, string(c.Expected), string(c.Before), string(c.After), Snippet(c.Query, 48))
	}
	if err := t.flush(); err != nil {
		return err
	}

	var extra []string
	if len(diff.Added) > 0 {
		extra = append(extra, SubtleStyle.Render("New cases: "+strings.Join(diff.Added, ", ")))
	}
	if len(diff.Removed) > 0 {
		extra = append(extra, SubtleStyle.Render("Removed cases: "+strings.Join(diff.Removed, ", ")))
	}
	return writeLines(w, extra...)
}

// RenderRuns prints stored evaluation runs, newest first.
func RenderRuns(w io.Writer, runs []model.EvalRun) error {
	if len(runs) == 0 {
		return writeLines(w, FormatInfo("No evaluation runs recorded yet."))
	}
	if err := writeLines(w, FormatTitle(FolderIcon+" Evaluation history")); err != nil {
		return err
	}
	t := newTable(w)
	t.header("Version", "Recorded", "Accuracy", "Avg conf", "Cases", "Thresholds")
	for _, r := range runs {
		t.row(r.Version,
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%.1f%%", r.Metrics.Accuracy*100),
			fmt.Sprintf("%.2f", r.Metrics.AvgConfidence),
			fmt.Sprintf("%d/%d", r.Metrics.Correct, r.Metrics.Total),
			r.Metrics.Config.String())
	}
	return t.flush()
}
