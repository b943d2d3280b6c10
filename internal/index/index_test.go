package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/model"
	"github.com/Veraticus/modality/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture() []model.DocumentChunk {
	return []model.DocumentChunk{
		testutil.Chunk("a1", model.CategoryA, "thought records", 1, 0),
		testutil.Chunk("a2", model.CategoryA, "behavioral experiments", 0.6, 0.8),
		testutil.Chunk("a3", model.CategoryA, "unrelated", 0, 1),
		testutil.Chunk("b1", model.CategoryB, "wise mind", -1, 0),
		testutil.Chunk("b2", model.CategoryB, "radical acceptance", 0.8, 0.6),
	}
}

func loadFixture(t *testing.T, chunks []model.DocumentChunk) *Index {
	t.Helper()
	src := testutil.NewMemorySource(testutil.Manifest(2, chunks), chunks)
	idx := Load(context.Background(), src, Options{Dimension: 2}, nil)
	require.True(t, idx.Loaded(), "load error: %v", idx.LoadErr())
	return idx
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b model.Vector
		want float64
	}{
		{name: "identical", a: model.Vector{1, 2, 3}, b: model.Vector{1, 2, 3}, want: 1},
		{name: "orthogonal", a: model.Vector{1, 0}, b: model.Vector{0, 1}, want: 0},
		{name: "opposite", a: model.Vector{1, 0}, b: model.Vector{-1, 0}, want: -1},
		{name: "zero query", a: model.Vector{0, 0}, b: model.Vector{1, 0}, want: 0},
		{name: "zero chunk", a: model.Vector{1, 0}, b: model.Vector{0, 0}, want: 0},
		{name: "length mismatch", a: model.Vector{1, 0}, b: model.Vector{1, 0, 0}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSearch(t *testing.T) {
	idx := loadFixture(t, fixture())
	query := model.Vector{1, 0}

	results := idx.Search(model.CategoryA, query, 10, 0)
	require.Len(t, results, 2)
	assert.Equal(t, "a1", results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-9)
	assert.Equal(t, "a2", results[1].Chunk.ID)
	assert.InDelta(t, 0.6, results[1].Similarity, 1e-9)

	// b1 has negative similarity and never clears a zero floor
	results = idx.Search(model.CategoryB, query, 10, 0)
	require.Len(t, results, 1)
	assert.Equal(t, "b2", results[0].Chunk.ID)
}

func TestSearch_ThresholdIsExclusive(t *testing.T) {
	idx := loadFixture(t, fixture())

	// a1 scores exactly 1.0
	assert.Empty(t, idx.Search(model.CategoryA, model.Vector{1, 0}, 10, 1.0))

	results := idx.Search(model.CategoryA, model.Vector{1, 0}, 10, 0.99)
	require.Len(t, results, 1)
	assert.Equal(t, "a1", results[0].Chunk.ID)
}

func TestSearch_TopKAndCap(t *testing.T) {
	var chunks []model.DocumentChunk
	for i := 0; i < 30; i++ {
		chunks = append(chunks, testutil.Chunk(fmt.Sprintf("a%02d", i), model.CategoryA, "same", 1, 1))
	}
	idx := loadFixture(t, chunks)

	assert.Len(t, idx.Search(model.CategoryA, model.Vector{1, 1}, 5, 0), 5)
	capped := idx.Search(model.CategoryA, model.Vector{1, 1}, 100, 0)
	require.Len(t, capped, MaxTopK)
	// equal scores keep index order
	for i, r := range capped {
		assert.Equal(t, fmt.Sprintf("a%02d", i), r.Chunk.ID)
	}
	assert.Empty(t, idx.Search(model.CategoryA, model.Vector{1, 1}, 0, 0))
}

func TestSearch_ZeroQuery(t *testing.T) {
	idx := loadFixture(t, fixture())
	assert.Empty(t, idx.Search(model.CategoryA, model.Vector{0, 0}, 10, 0))
}

func TestSearch_WrongDimensionQuery(t *testing.T) {
	idx := loadFixture(t, fixture())
	assert.Empty(t, idx.Search(model.CategoryA, model.Vector{1, 0, 0}, 10, -1))
}

func TestLoad_NotLoaded(t *testing.T) {
	chunks := fixture()

	tests := []struct {
		setup func() *testutil.MemorySource
		opts  Options
		name  string
	}{
		{
			name:  "missing manifest",
			setup: func() *testutil.MemorySource { return testutil.NewMemorySource(nil, chunks) },
		},
		{
			name: "manifest read error",
			setup: func() *testutil.MemorySource {
				src := testutil.NewMemorySource(testutil.Manifest(2, chunks), chunks)
				src.ManifestErr = errors.New("permission denied")
				return src
			},
		},
		{
			name: "bad schema version",
			setup: func() *testutil.MemorySource {
				m := testutil.Manifest(2, chunks)
				m.SchemaVersion = 99
				return testutil.NewMemorySource(m, chunks)
			},
		},
		{
			name:  "dimension mismatch with embedder",
			setup: func() *testutil.MemorySource { return testutil.NewMemorySource(testutil.Manifest(2, chunks), chunks) },
			opts:  Options{Dimension: 768},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := Load(context.Background(), tt.setup(), tt.opts, nil)
			assert.False(t, idx.Loaded())
			assert.ErrorIs(t, idx.LoadErr(), common.ErrIndexNotLoaded)
			assert.Nil(t, idx.Manifest())
			assert.Empty(t, idx.Search(model.CategoryA, model.Vector{1, 0}, 10, 0))
		})
	}
}

func TestLoad_NilSource(t *testing.T) {
	idx := Load(context.Background(), nil, Options{}, nil)
	assert.False(t, idx.Loaded())
}

func TestLoad_SkipsMalformedChunks(t *testing.T) {
	chunks := fixture()
	chunks = append(chunks,
		testutil.Chunk("a-empty", model.CategoryA, "no embedding"),
		testutil.Chunk("a-wide", model.CategoryA, "wrong dimension", 1, 0, 0),
		testutil.Chunk("a-broken", model.CategoryA, "unreadable", 1, 0),
	)
	src := testutil.NewMemorySource(testutil.Manifest(2, chunks), chunks)
	src.ChunkErrs["a-broken"] = errors.New("corrupt record")

	idx := Load(context.Background(), src, Options{}, nil)
	require.True(t, idx.Loaded())
	assert.Equal(t, 3, idx.Len(model.CategoryA))
	assert.Equal(t, 2, idx.Len(model.CategoryB))
	assert.Equal(t, 3, idx.Skipped())
}

func TestLoad_SkipsNonFiniteEmbeddings(t *testing.T) {
	chunks := fixture()
	chunks = append(chunks,
		testutil.Chunk("b-nan", model.CategoryB, "nan component", math.NaN(), 0),
		testutil.Chunk("a-inf", model.CategoryA, "infinite component", math.Inf(1), 0),
	)
	src := testutil.NewMemorySource(testutil.Manifest(2, chunks), chunks)

	idx := Load(context.Background(), src, Options{}, nil)
	require.True(t, idx.Loaded())
	assert.Equal(t, 3, idx.Len(model.CategoryA))
	assert.Equal(t, 2, idx.Len(model.CategoryB))
	assert.Equal(t, 2, idx.Skipped())

	for _, r := range idx.Search(model.CategoryB, model.Vector{1, 0}, 10, -1) {
		assert.NotEqual(t, "b-nan", r.Chunk.ID)
	}
}

func TestSearch_SkipsNonFiniteSimilarity(t *testing.T) {
	idx := loadFixture(t, fixture())
	// Bypass load validation to exercise the search-time guard.
	idx.chunks[model.CategoryB] = append(idx.chunks[model.CategoryB],
		testutil.Chunk("b-nan", model.CategoryB, "nan component", math.NaN(), 0))

	results := idx.Search(model.CategoryB, model.Vector{1, 0}, 10, -1)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.False(t, math.IsNaN(r.Similarity), "chunk %s", r.Chunk.ID)
		assert.NotEqual(t, "b-nan", r.Chunk.ID)
	}
	assert.Equal(t, "b2", results[0].Chunk.ID)
}

func TestNotLoaded(t *testing.T) {
	idx := NotLoaded(nil)
	assert.False(t, idx.Loaded())
	assert.ErrorIs(t, idx.LoadErr(), common.ErrIndexNotLoaded)
	assert.Equal(t, 0, idx.Len(model.CategoryA))
}

func TestSortScored_Stable(t *testing.T) {
	results := []model.ScoredChunk{
		{Chunk: model.DocumentChunk{ID: "x"}, Similarity: 0.5},
		{Chunk: model.DocumentChunk{ID: "y"}, Similarity: 0.9},
		{Chunk: model.DocumentChunk{ID: "z"}, Similarity: 0.5},
	}
	SortScored(results)
	ids := []string{results[0].Chunk.ID, results[1].Chunk.ID, results[2].Chunk.ID}
	assert.Equal(t, []string{"y", "x", "z"}, ids)
	assert.False(t, math.IsNaN(results[0].Similarity))
}
