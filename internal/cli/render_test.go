package cli

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/modality/internal/evaluation"
	"github.com/Veraticus/modality/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnippet(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  string
		width int
	}{
		{name: "short text unchanged", text: "hello", width: 10, want: "hello"},
		{name: "whitespace collapsed", text: "  a \n\t b  ", width: 10, want: "a b"},
		{name: "truncated with ellipsis", text: "abcdefghij", width: 6, want: "abc..."},
		{name: "tiny width", text: "abcdef", width: 2, want: "ab"},
		{name: "zero width keeps text", text: "abc", width: 0, want: "abc"},
		{name: "counts runes", text: "ééééé", width: 4, want: "é..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Snippet(tt.text, tt.width))
		})
	}
}

func TestRenderRecommendation(t *testing.T) {
	rec := model.Recommendation{
		Category:   model.CategoryB,
		Confidence: 0.8,
		SupportingChunks: []model.ScoredChunk{{
			Chunk: model.DocumentChunk{
				ID:       "b1",
				Text:     "Opposite action means acting against the urge.",
				Metadata: model.ChunkMetadata{Source: "skills.pdf", Category: model.CategoryB, Page: 12},
			},
			Similarity: 0.812,
		}},
		Explanation: model.Explanation{
			Chosen: model.SourceRule,
			Reason: model.ReasonRuleOverride,
			Rule:   model.RuleResult{Category: model.CategoryB, Confidence: 0.8, MatchedB: []string{"mood swings"}},
			Vector: &model.VectorResult{Category: model.CategoryB, Confidence: 0.5, HitsB: 3},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderRecommendation(&buf, "my mood swings", rec))
	out := buf.String()

	assert.Contains(t, out, "Dialectical Behavioral (B)")
	assert.Contains(t, out, "rule_override")
	assert.Contains(t, out, "mood swings")
	assert.Contains(t, out, "skills.pdf p.12")
	assert.Contains(t, out, "0.812")
}

func TestRenderRecommendation_NoVectorNoChunks(t *testing.T) {
	rec := model.Recommendation{
		Category:    model.CategoryA,
		Confidence:  0.6,
		Explanation: model.Explanation{Chosen: model.SourceRule, Reason: model.ReasonIndexNotLoaded},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderRecommendation(&buf, "q", rec))
	assert.Contains(t, buf.String(), "not consulted")
	assert.NotContains(t, buf.String(), "Supporting passages")
}

func TestRenderSearchResults_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderSearchResults(&buf, model.CategoryA, nil))
	assert.Contains(t, buf.String(), "No passages from Cognitive Behavioral (A)")

	buf.Reset()
	require.NoError(t, RenderSearchResults(&buf, "", nil))
	assert.Contains(t, buf.String(), "either category")
}

func TestRenderSearchResults(t *testing.T) {
	results := []model.ScoredChunk{
		{Chunk: model.DocumentChunk{ID: "a1", Text: "Thought records", Metadata: model.ChunkMetadata{Category: model.CategoryA}}, Similarity: 0.91},
		{Chunk: model.DocumentChunk{ID: "b1", Text: "Distress tolerance", Metadata: model.ChunkMetadata{Category: model.CategoryB}}, Similarity: 0.72},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderSearchResults(&buf, "", results))
	out := buf.String()
	assert.Contains(t, out, "2 passages from either category")
	assert.Contains(t, out, "0.910")
	assert.Contains(t, out, "Distress tolerance")
}

func TestRenderStatus(t *testing.T) {
	tests := []struct {
		name   string
		want   []string
		status Status
	}{
		{
			name: "loaded",
			status: Status{
				Loaded: true, Source: "sqlite", Location: "/tmp/m.db", Model: "nomic-embed-text",
				Dimension: 768, ChunksA: 10, ChunksB: 12,
				Manifest: &model.Manifest{EmbeddingModel: "nomic-embed-text", CreatedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)},
			},
			want: []string{"Index loaded from sqlite /tmp/m.db", "768", "2024-05-01 09:30"},
		},
		{
			name:   "not loaded",
			status: Status{Source: "dir", Location: "/data", LoadErr: errors.New("manifest missing")},
			want:   []string{"Index not loaded", "manifest missing", "keyword rules"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, RenderStatus(&buf, tt.status))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestRenderMetrics(t *testing.T) {
	m := model.Metrics{
		Total: 2, Correct: 1, Accuracy: 0.5, AvgConfidence: 0.7,
		Config: model.DefaultThresholds(),
		Results: []model.CaseResult{
			{CaseID: "ok", Expected: model.CategoryA, Predicted: model.CategoryA, Correct: true},
			{CaseID: "miss", Query: "furious", Expected: model.CategoryB, Predicted: model.CategoryA, Source: model.SourceVector},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderMetrics(&buf, m))
	out := buf.String()
	assert.Contains(t, out, "1/2 correct")
	assert.Contains(t, out, "1 misclassified")
	assert.Contains(t, out, "miss")
	assert.NotContains(t, out, "Every case matched")
}

func TestRenderGridResult(t *testing.T) {
	best := model.DefaultThresholds().WithSimilarityThreshold(0.4)
	res := evaluation.GridResult{
		All: []evaluation.GridPoint{
			{Config: model.DefaultThresholds(), Accuracy: 0.5, Correct: 1, Total: 2},
			{Config: best, Accuracy: 1, Correct: 2, Total: 2},
		},
		Best:         best,
		BestAccuracy: 1,
	}

	var buf bytes.Buffer
	require.NoError(t, RenderGridResult(&buf, res))
	assert.Contains(t, buf.String(), "2 configurations")
	assert.Contains(t, buf.String(), "100.0% (2/2)")
	assert.Contains(t, buf.String(), "Best: "+best.String())
}

func TestRenderRunDiff(t *testing.T) {
	t.Run("first run", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderRunDiff(&buf, "v1", nil))
		assert.Contains(t, buf.String(), "first run")
	})

	t.Run("regression", func(t *testing.T) {
		diff := &evaluation.RunDiff{
			PreviousVersion: "v1",
			AccuracyDelta:   -0.5,
			Regressions: []evaluation.CaseChange{
				{CaseID: "volatility", Expected: model.CategoryB, Before: model.CategoryB, After: model.CategoryA},
			},
			Added: []string{"new-case"},
		}
		var buf bytes.Buffer
		require.NoError(t, RenderRunDiff(&buf, "v2", diff))
		out := buf.String()
		assert.Contains(t, out, "Compared v2 with v1")
		assert.Contains(t, out, "volatility")
		assert.Contains(t, out, "New cases: new-case")
	})

	t.Run("unchanged", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderRunDiff(&buf, "v2", &evaluation.RunDiff{PreviousVersion: "v1"}))
		assert.Contains(t, buf.String(), "No case changed outcome")
	})
}

func TestRenderRuns(t *testing.T) {
	var empty bytes.Buffer
	require.NoError(t, RenderRuns(&empty, nil))
	assert.Contains(t, empty.String(), "No evaluation runs")

	runs := []model.EvalRun{{
		Version:   "v3",
		CreatedAt: time.Now(),
		Metrics:   model.Metrics{Accuracy: 0.75, Correct: 3, Total: 4},
	}}
	var buf bytes.Buffer
	require.NoError(t, RenderRuns(&buf, runs))
	assert.Contains(t, buf.String(), "v3")
	assert.Contains(t, buf.String(), "75.0%")
	assert.Contains(t, buf.String(), "3/4")
}

func TestFormatDelta(t *testing.T) {
	assert.Contains(t, FormatDelta(0.25), "+25.0%")
	assert.Contains(t, FormatDelta(-0.1), "-10.0%")
	assert.Contains(t, FormatDelta(0), "±0.0%")
}

func TestProgressFunc(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(4, "testing", &buf)
	fn := ProgressFunc(bar)
	fn(2, 4)
	assert.Equal(t, int64(2), bar.State().CurrentNum)
}
