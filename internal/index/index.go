// Package index holds the per-category chunk sets and answers similarity queries.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/model"
	"github.com/Veraticus/modality/internal/service"
)

// MaxTopK caps the size of a single search result.
const MaxTopK = 20

// Options tune Load.
type Options struct {
	// Dimension, when set, must match the manifest's embedding dimension.
	Dimension int
	// Model, when set, is compared with the manifest and logged on mismatch.
	Model string
}

// Index is a read-only, in-memory chunk index partitioned by category.
// It is safe for concurrent use once loaded.
type Index struct {
	loadErr  error
	manifest *model.Manifest
	chunks   map[model.Category][]model.DocumentChunk
	logger   *slog.Logger
	skipped  int
	loaded   bool
}

// NotLoaded returns an index that reports reason as its load error.
func NotLoaded(reason error) *Index {
	if reason == nil {
		reason = common.ErrIndexNotLoaded
	}
	return &Index{
		loadErr: reason,
		chunks:  make(map[model.Category][]model.DocumentChunk),
		logger:  slog.Default(),
	}
}

// Load reads every category from src. It never fails: a missing or malformed
// manifest or category index leaves the returned index not loaded, with the
// cause available from LoadErr. Individual unreadable chunks are skipped.
func Load(ctx context.Context, src service.ChunkSource, opts Options, logger *slog.Logger) *Index {
	logger = common.OrDefault(logger)
	idx := NotLoaded(nil)
	idx.logger = logger

	if err := idx.load(ctx, src, opts); err != nil {
		idx.loadErr = err
		logger.Warn("Chunk index not loaded", "error", err)
		return idx
	}

	idx.loaded = true
	idx.loadErr = nil
	logger.Info("Chunk index loaded",
		"model", idx.manifest.EmbeddingModel,
		"dimension", idx.manifest.EmbeddingDimension,
		"chunks_a", len(idx.chunks[model.CategoryA]),
		"chunks_b", len(idx.chunks[model.CategoryB]),
		"skipped", idx.skipped)
	return idx
}

func (idx *Index) load(ctx context.Context, src service.ChunkSource, opts Options) error {
	if src == nil {
		return fmt.Errorf("%w: no chunk source", common.ErrIndexNotLoaded)
	}

	manifest, err := src.Manifest(ctx)
	if err != nil {
		return fmt.Errorf("%w: reading manifest: %w", common.ErrIndexNotLoaded, err)
	}
	if err := manifest.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrIndexNotLoaded, err)
	}
	if opts.Dimension > 0 && manifest.EmbeddingDimension != opts.Dimension {
		return fmt.Errorf("%w: manifest dimension %d does not match embedder dimension %d",
			common.ErrIndexNotLoaded, manifest.EmbeddingDimension, opts.Dimension)
	}
	if opts.Model != "" && manifest.EmbeddingModel != opts.Model {
		idx.logger.Warn("Embedding model differs from the one used to build the index",
			"index_model", manifest.EmbeddingModel,
			"query_model", opts.Model)
	}
	idx.manifest = manifest

	for _, cat := range model.Categories() {
		ids, err := src.ChunkIDs(ctx, cat)
		if err != nil {
			return fmt.Errorf("%w: reading %s index: %w", common.ErrIndexNotLoaded, cat, err)
		}

		chunks := make([]model.DocumentChunk, 0, len(ids))
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %w", common.ErrIndexNotLoaded, err)
			}
			chunk, err := src.Chunk(ctx, cat, id)
			if err != nil {
				idx.skip(cat, id, err)
				continue
			}
			if err := chunk.Validate(manifest.EmbeddingDimension); err != nil {
				idx.skip(cat, id, err)
				continue
			}
			switch chunk.Metadata.Category {
			case cat:
			case "":
				chunk.Metadata.Category = cat
			default:
				idx.skip(cat, id, fmt.Errorf("%w: chunk %s is tagged %s", model.ErrInvalidChunk, id, chunk.Metadata.Category))
				continue
			}
			chunks = append(chunks, *chunk)
		}
		idx.chunks[cat] = chunks
	}
	return nil
}

func (idx *Index) skip(cat model.Category, id string, err error) {
	idx.skipped++
	level := slog.LevelWarn
	if errors.Is(err, model.ErrInvalidChunk) {
		level = slog.LevelDebug
	}
	idx.logger.Log(context.Background(), level, "Skipping chunk",
		"category", cat,
		"id", id,
		"error", err)
}

// Loaded reports whether the index is usable.
func (idx *Index) Loaded() bool {
	return idx.loaded
}

// LoadErr explains why the index is not loaded.
func (idx *Index) LoadErr() error {
	return idx.loadErr
}

// Manifest returns the dataset manifest, or nil when not loaded.
func (idx *Index) Manifest() *model.Manifest {
	if !idx.loaded {
		return nil
	}
	m := *idx.manifest
	return &m
}

// Len returns the number of searchable chunks in category.
func (idx *Index) Len(category model.Category) int {
	return len(idx.chunks[category])
}

// Skipped returns how many chunk records were dropped during load.
func (idx *Index) Skipped() int {
	return idx.skipped
}

// Search returns chunks of category whose cosine similarity to query is
// strictly greater than minSimilarity, best first. Ties keep index order.
// At most min(topK, MaxTopK) results are returned.
func (idx *Index) Search(category model.Category, query model.Vector, topK int, minSimilarity float64) []model.ScoredChunk {
	if !idx.loaded || topK <= 0 {
		return nil
	}
	topK = min(topK, MaxTopK)

	var results []model.ScoredChunk
	for _, chunk := range idx.chunks[category] {
		if len(chunk.Embedding) != len(query) {
			idx.logger.Debug("Skipping chunk with mismatched dimension",
				"id", chunk.ID,
				"chunk_dimension", len(chunk.Embedding),
				"query_dimension", len(query))
			continue
		}
		sim := CosineSimilarity(query, chunk.Embedding)
		if math.IsNaN(sim) || math.IsInf(sim, 0) {
			idx.logger.Debug("Skipping chunk with non-finite similarity", "id", chunk.ID)
			continue
		}
		if sim <= minSimilarity {
			continue
		}
		results = append(results, model.ScoredChunk{Chunk: chunk, Similarity: sim})
	}

	SortScored(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// SortScored orders results by similarity descending, preserving the
// relative order of equal scores.
func SortScored(results []model.ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
}
