// Package service defines the interfaces shared between the engine and its collaborators.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/modality/internal/model"
)

// Embedder turns text into vectors. Implementations never fail: exhausted
// backend calls degrade to a zero vector of Dimension().
type Embedder interface {
	Embed(ctx context.Context, text string) model.Vector
	EmbedBatch(ctx context.Context, texts []string) []model.Vector
	Dimension() int
	ModelName() string
}

// ChunkSource is the read-only dataset contract: given a category, return the
// ordered id list; given an id, return the chunk record.
type ChunkSource interface {
	Manifest(ctx context.Context) (*model.Manifest, error)
	ChunkIDs(ctx context.Context, category model.Category) ([]string, error)
	Chunk(ctx context.Context, category model.Category, id string) (*model.DocumentChunk, error)
}

// DatasetWriter stores a complete chunk dataset.
type DatasetWriter interface {
	ImportDataset(ctx context.Context, manifest *model.Manifest, chunks []model.DocumentChunk) error
}

// HistoryStore persists versioned evaluation runs.
type HistoryStore interface {
	SaveRun(ctx context.Context, run *model.EvalRun) error
	GetRun(ctx context.Context, version string) (*model.EvalRun, error)
	// LatestRunBefore returns the most recent run created before the given run,
	// or common.ErrNotFound when there is none.
	LatestRunBefore(ctx context.Context, run *model.EvalRun) (*model.EvalRun, error)
	ListRuns(ctx context.Context, limit int) ([]model.EvalRun, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter is the fraction of each delay that is randomised, in [0, 1].
	Jitter float64
}
