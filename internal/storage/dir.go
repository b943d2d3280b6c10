package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/model"
	"github.com/Veraticus/modality/internal/service"
)

var _ service.ChunkSource = (*DirSource)(nil)

// Layout of a directory dataset, relative to its root.
const (
	manifestFile  = "manifest.json"
	categoriesDir = "categories"
	indexFile     = "index.json"
	chunksDir     = "chunks"
)

// categoryIndex is the on-disk id list of one category.
type categoryIndex struct {
	Category model.Category `json:"category"`
	ChunkIDs []string       `json:"chunk_ids"`
}

// DirSource reads a chunk dataset laid out as JSON files:
//
//	manifest.json
//	categories/<A|B>/index.json
//	categories/<A|B>/chunks/<id>.json
type DirSource struct {
	root string
}

// NewDirSource creates a source rooted at root. Nothing is read until the
// first call.
func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

// Root returns the dataset directory.
func (d *DirSource) Root() string {
	return d.root
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // dataset paths are built from validated parts
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// Manifest reads manifest.json.
func (d *DirSource) Manifest(ctx context.Context) (*model.Manifest, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	var m model.Manifest
	if err := readJSON(filepath.Join(d.root, manifestFile), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ChunkIDs reads the category's index.json.
func (d *DirSource) ChunkIDs(ctx context.Context, category model.Category) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateCategory(category); err != nil {
		return nil, err
	}
	var idx categoryIndex
	if err := readJSON(filepath.Join(d.root, categoriesDir, string(category), indexFile), &idx); err != nil {
		return nil, err
	}
	if idx.ChunkIDs == nil {
		return []string{}, nil
	}
	return idx.ChunkIDs, nil
}

// Chunk reads categories/<category>/chunks/<id>.json.
func (d *DirSource) Chunk(ctx context.Context, category model.Category, id string) (*model.DocumentChunk, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateCategory(category); err != nil {
		return nil, err
	}
	if err := validateChunkID(id); err != nil {
		return nil, err
	}
	var c model.DocumentChunk
	if err := readJSON(chunkPath(d.root, category, id), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func chunkPath(root string, category model.Category, id string) string {
	return filepath.Join(root, categoriesDir, string(category), chunksDir, id+".json")
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WriteDir writes manifest and chunks to root in the layout DirSource reads.
// Both category directories are always created.
func WriteDir(root string, manifest *model.Manifest, chunks []model.DocumentChunk) error {
	if err := validateString(root, "root"); err != nil {
		return err
	}
	if err := validateDataset(manifest, chunks); err != nil {
		return err
	}

	ids := make(map[model.Category][]string)
	for _, cat := range model.Categories() {
		if err := os.MkdirAll(filepath.Join(root, categoriesDir, string(cat), chunksDir), 0750); err != nil {
			return fmt.Errorf("failed to create dataset directory: %w", err)
		}
		ids[cat] = []string{}
	}

	for i := range chunks {
		c := &chunks[i]
		cat := c.Metadata.Category
		if err := writeJSON(chunkPath(root, cat, c.ID), c); err != nil {
			return err
		}
		ids[cat] = append(ids[cat], c.ID)
	}

	for cat, list := range ids {
		idx := categoryIndex{Category: cat, ChunkIDs: list}
		if err := writeJSON(filepath.Join(root, categoriesDir, string(cat), indexFile), idx); err != nil {
			return err
		}
	}

	return writeJSON(filepath.Join(root, manifestFile), manifest)
}

// ReadAll loads a full dataset from src in index order, for copying between
// storage engines. Unlike the index loader it fails on the first bad record.
func ReadAll(ctx context.Context, src service.ChunkSource) (*model.Manifest, []model.DocumentChunk, error) {
	manifest, err := src.Manifest(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var chunks []model.DocumentChunk
	for _, cat := range model.Categories() {
		ids, err := src.ChunkIDs(ctx, cat)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list category %s: %w", cat, err)
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			c, err := src.Chunk(ctx, cat, id)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to read chunk %s/%s: %w", cat, id, err)
			}
			if c.Metadata.Category == "" {
				c.Metadata.Category = cat
			}
			chunks = append(chunks, *c)
		}
	}
	return manifest, chunks, nil
}
