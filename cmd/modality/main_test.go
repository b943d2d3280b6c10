package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Veraticus/modality/internal/classification"
	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/config"
	"github.com/Veraticus/modality/internal/evaluation"
	"github.com/Veraticus/modality/internal/model"
	"github.com/Veraticus/modality/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useRulesOnlyConfig points the dir source at an empty directory so the index
// never loads and no embedding backend is contacted.
func useRulesOnlyConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	viper.Set("index.source", config.SourceDir)
	viper.Set("index.path", filepath.Join(dir, "dataset"))
	viper.Set("database.path", filepath.Join(dir, "modality.db"))
	t.Cleanup(func() {
		viper.Reset()
		config.SetDefaults(viper.GetViper())
	})
	return dir
}

func prepare(cmd *cobra.Command) *bytes.Buffer {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	return &out
}

func TestThresholdsFromFlags(t *testing.T) {
	base := model.DefaultThresholds()

	tests := []struct {
		name string
		set  map[string]string
		want model.ThresholdConfig
	}{
		{name: "no flags keeps base", want: base},
		{
			name: "only changed flags apply",
			set:  map[string]string{"min-confidence": "0.7", "retrieval-floor": "0.1"},
			want: base.WithMinConfidence(0.7).WithRetrievalFloor(0.1),
		},
		{
			name: "explicit zero applies",
			set:  map[string]string{"similarity-threshold": "0"},
			want: base.WithSimilarityThreshold(0),
		},
		{
			name: "rule boost",
			set:  map[string]string{"rule-boost": "0.25"},
			want: base.WithRuleConfidenceBoost(0.25),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := evaluateCmd()
			for k, v := range tt.set {
				require.NoError(t, cmd.Flags().Set(k, v))
			}
			assert.Equal(t, tt.want, thresholdsFromFlags(cmd.Flags(), base))
		})
	}
}

func TestReadQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.txt")
	require.NoError(t, os.WriteFile(path, []byte("first query\n\n   \n  second query  \n"), 0o600))

	queries, err := readQueries(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"first query", "second query"}, queries)

	_, err = readQueries(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestRecommend_RulesOnlyWhenIndexMissing(t *testing.T) {
	useRulesOnlyConfig(t)
	query := "I get furious and can't control my emotions"

	cmd := recommendCmd()
	out := prepare(cmd)
	require.NoError(t, cmd.Flags().Set("json", "true"))
	require.NoError(t, runRecommend(cmd, []string{query}))

	var got recommendOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))

	rules, err := classification.NewDefaultRuleClassifier()
	require.NoError(t, err)
	want := rules.Classify(query)

	assert.Equal(t, query, got.Query)
	assert.Equal(t, want.Category, got.Category)
	assert.InDelta(t, want.Confidence, got.Confidence, 1e-9)
	assert.Equal(t, model.ReasonIndexNotLoaded, got.Explanation.Reason)
	assert.Empty(t, got.SupportingChunks)
}

func TestRecommend_RequiresQuery(t *testing.T) {
	useRulesOnlyConfig(t)
	cmd := recommendCmd()
	prepare(cmd)
	err := runRecommend(cmd, nil)
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestEvaluate_RecordsHistory(t *testing.T) {
	dir := useRulesOnlyConfig(t)
	casesPath := filepath.Join(dir, "cases.yaml")
	require.NoError(t, os.WriteFile(casesPath, []byte(`cases:
  - id: volatility
    query: "I get furious and can't control my emotions"
    expected: B
  - id: worry
    query: "I keep catastrophizing and worrying about everything"
    expected: A
`), 0o600))

	for i, tag := range []string{"v1", "v2"} {
		cmd := evaluateCmd()
		out := prepare(cmd)
		require.NoError(t, cmd.Flags().Set("cases", casesPath))
		require.NoError(t, cmd.Flags().Set("version", tag))
		require.NoError(t, cmd.Flags().Set("json", "true"))
		require.NoError(t, runEvaluate(cmd, nil))

		var got struct {
			Diff    *evaluation.RunDiff `json:"diff"`
			Metrics model.Metrics       `json:"metrics"`
		}
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, 2, got.Metrics.Total)
		if i == 0 {
			assert.Nil(t, got.Diff)
		} else {
			require.NotNil(t, got.Diff)
			assert.Equal(t, "v1", got.Diff.PreviousVersion)
			assert.False(t, got.Diff.Changed())
		}
	}

	dup := evaluateCmd()
	prepare(dup)
	require.NoError(t, dup.Flags().Set("cases", casesPath))
	require.NoError(t, dup.Flags().Set("version", "v1"))
	err := runEvaluate(dup, nil)
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)

	history := historyCmd()
	out := prepare(history)
	require.NoError(t, history.RunE(history, nil))
	assert.Contains(t, out.String(), "v2")
	assert.Contains(t, out.String(), "v1")
}

func TestImportAndExport_RoundTrip(t *testing.T) {
	dir := useRulesOnlyConfig(t)
	src := filepath.Join(dir, "src")
	manifest := &model.Manifest{
		SchemaVersion:      model.ManifestSchemaVersion,
		EmbeddingModel:     "test-model",
		EmbeddingDimension: 2,
		Categories: map[model.Category]model.CategoryStats{
			model.CategoryA: {Documents: 1, Chunks: 1},
			model.CategoryB: {Documents: 1, Chunks: 1},
		},
	}
	chunks := []model.DocumentChunk{
		{ID: "a1", Text: "thought record", Embedding: model.Vector{1, 0}, Metadata: model.ChunkMetadata{Category: model.CategoryA}},
		{ID: "b1", Text: "opposite action", Embedding: model.Vector{0, 1}, Metadata: model.ChunkMetadata{Category: model.CategoryB}},
	}
	require.NoError(t, storage.WriteDir(src, manifest, chunks))

	imp := importCmd()
	out := prepare(imp)
	require.NoError(t, imp.Flags().Set("from", src))
	require.NoError(t, runImport(imp, nil))
	assert.Contains(t, out.String(), "Imported 2 chunks")

	viper.Set("index.source", config.SourceSQLite)
	dst := filepath.Join(dir, "exported")
	exp := exportCmd()
	out = prepare(exp)
	require.NoError(t, exp.Flags().Set("to", dst))
	require.NoError(t, exp.RunE(exp, nil))
	assert.Contains(t, out.String(), "Exported 2 chunks")
	assert.FileExists(t, filepath.Join(dst, "manifest.json"))
	assert.FileExists(t, filepath.Join(dst, "categories", "B", "chunks", "b1.json"))
}

func TestImport_UnknownTarget(t *testing.T) {
	useRulesOnlyConfig(t)
	cfg, err := loadConfig()
	require.NoError(t, err)

	_, _, _, err = openWriter(context.Background(), cfg, "mongo", "")
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}
