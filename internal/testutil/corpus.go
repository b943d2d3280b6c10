// Package testutil provides fixtures shared by package tests: an in-memory
// chunk dataset, a deterministic embedding backend and a migrated SQLite store.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/model"
)

// Chunk builds a chunk with an explicit embedding.
func Chunk(id string, category model.Category, text string, embedding ...float64) model.DocumentChunk {
	return model.DocumentChunk{
		ID:         id,
		DocumentID: "doc-" + string(category),
		Text:       text,
		Embedding:  embedding,
		Metadata: model.ChunkMetadata{
			Source:   "test handbook " + string(category),
			Category: category,
			Page:     1,
		},
	}
}

// Manifest describes chunks with the given embedding dimension.
func Manifest(dim int, chunks []model.DocumentChunk) *model.Manifest {
	m := &model.Manifest{
		SchemaVersion:      model.ManifestSchemaVersion,
		CreatedAt:          time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		EmbeddingModel:     "vocab-test",
		EmbeddingDimension: dim,
		Categories:         make(map[model.Category]model.CategoryStats),
	}
	docs := make(map[model.Category]map[string]bool)
	for _, c := range chunks {
		cat := c.Metadata.Category
		stats := m.Categories[cat]
		stats.Chunks++
		if docs[cat] == nil {
			docs[cat] = make(map[string]bool)
		}
		if !docs[cat][c.DocumentID] {
			docs[cat][c.DocumentID] = true
			stats.Documents++
		}
		m.Categories[cat] = stats
	}
	return m
}

// MemorySource is an in-memory ChunkSource. Errors can be injected per call.
type MemorySource struct {
	ManifestErr error
	ChunkErrs   map[string]error
	manifest    *model.Manifest
	ids         map[model.Category][]string
	chunks      map[string]model.DocumentChunk
	mu          sync.Mutex
}

// NewMemorySource indexes chunks by their metadata category, in order.
func NewMemorySource(manifest *model.Manifest, chunks []model.DocumentChunk) *MemorySource {
	src := &MemorySource{
		manifest:  manifest,
		ids:       make(map[model.Category][]string),
		chunks:    make(map[string]model.DocumentChunk),
		ChunkErrs: make(map[string]error),
	}
	for _, c := range chunks {
		cat := c.Metadata.Category
		src.ids[cat] = append(src.ids[cat], c.ID)
		src.chunks[string(cat)+"/"+c.ID] = c
	}
	return src
}

// Manifest returns the dataset manifest.
func (s *MemorySource) Manifest(_ context.Context) (*model.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ManifestErr != nil {
		return nil, s.ManifestErr
	}
	if s.manifest == nil {
		return nil, fmt.Errorf("manifest: %w", common.ErrNotFound)
	}
	m := *s.manifest
	return &m, nil
}

// ChunkIDs returns the ordered ids of a category.
func (s *MemorySource) ChunkIDs(_ context.Context, category model.Category) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids[category]...), nil
}

// Chunk returns one chunk record.
func (s *MemorySource) Chunk(_ context.Context, category model.Category, id string) (*model.DocumentChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ChunkErrs[id]; err != nil {
		return nil, err
	}
	c, ok := s.chunks[string(category)+"/"+id]
	if !ok {
		return nil, fmt.Errorf("chunk %s: %w", id, common.ErrNotFound)
	}
	return &c, nil
}

// EmbedCorpus fills in embeddings for texts keyed by category using embed.
func EmbedCorpus(t *testing.T, embed func([]string) []model.Vector, corpus map[model.Category][]string) []model.DocumentChunk {
	t.Helper()

	var chunks []model.DocumentChunk
	for _, cat := range model.Categories() {
		texts := corpus[cat]
		if len(texts) == 0 {
			continue
		}
		vecs := embed(texts)
		for i, text := range texts {
			c := Chunk(fmt.Sprintf("%s-%02d", cat, i), cat, text, vecs[i]...)
			c.Sequence = i
			chunks = append(chunks, c)
		}
	}
	return chunks
}
