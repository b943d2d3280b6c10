package model

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidChunk is returned when a chunk record cannot be used for search.
var ErrInvalidChunk = errors.New("invalid chunk")

// Vector is a fixed-dimension embedding.
type Vector []float64

// IsZero reports whether every component is zero. An empty vector is zero.
func (v Vector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Norm returns the L2 norm of v.
func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Equal reports whether both vectors hold bit-identical components.
func (v Vector) Equal(other Vector) bool {
	if len(v) != len(other) {
		return false
	}
	for i := range v {
		if math.Float64bits(v[i]) != math.Float64bits(other[i]) {
			return false
		}
	}
	return true
}

// ChunkMetadata describes where a chunk came from.
type ChunkMetadata struct {
	Source   string   `json:"source"`
	Category Category `json:"category"`
	Page     int      `json:"page"`
}

// DocumentChunk is a span of reference text with its precomputed embedding.
// Chunks are immutable once loaded.
type DocumentChunk struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"document_id"`
	Text       string        `json:"text"`
	Metadata   ChunkMetadata `json:"metadata"`
	Embedding  Vector        `json:"embedding"`
	Sequence   int           `json:"sequence"`
}

// Validate checks that the chunk is searchable: it needs an id and a finite
// embedding. A dim of zero skips the dimension check.
func (c *DocumentChunk) Validate(dim int) error {
	if c.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidChunk)
	}
	if len(c.Embedding) == 0 {
		return fmt.Errorf("%w: chunk %s has no embedding", ErrInvalidChunk, c.ID)
	}
	if dim > 0 && len(c.Embedding) != dim {
		return fmt.Errorf("%w: chunk %s has dimension %d, expected %d", ErrInvalidChunk, c.ID, len(c.Embedding), dim)
	}
	for i, x := range c.Embedding {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: chunk %s has a non-finite component at %d", ErrInvalidChunk, c.ID, i)
		}
	}
	return nil
}

// ScoredChunk pairs a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk      DocumentChunk `json:"chunk"`
	Similarity float64       `json:"similarity"`
}
