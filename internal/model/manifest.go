package model

import (
	"fmt"
	"time"
)

// ManifestSchemaVersion is the dataset layout version this build reads.
const ManifestSchemaVersion = 1

// CategoryStats counts the documents and chunks stored for one category.
type CategoryStats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

// Manifest is the top-level description of a chunk dataset.
type Manifest struct {
	CreatedAt          time.Time                  `json:"created_at"`
	Categories         map[Category]CategoryStats `json:"categories"`
	EmbeddingModel     string                     `json:"embedding_model"`
	SchemaVersion      int                        `json:"schema_version"`
	EmbeddingDimension int                        `json:"embedding_dimension"`
	Accelerated        bool                       `json:"accelerated"`
}

// Validate checks the manifest is usable by this build.
func (m *Manifest) Validate() error {
	if m.SchemaVersion != ManifestSchemaVersion {
		return fmt.Errorf("unsupported manifest schema version %d", m.SchemaVersion)
	}
	if m.EmbeddingDimension <= 0 {
		return fmt.Errorf("manifest embedding dimension must be positive, got %d", m.EmbeddingDimension)
	}
	for cat := range m.Categories {
		if !cat.Valid() {
			return fmt.Errorf("manifest lists unknown category %q", cat)
		}
	}
	return nil
}

// TotalChunks sums chunk counts across categories.
func (m *Manifest) TotalChunks() int {
	total := 0
	for _, stats := range m.Categories {
		total += stats.Chunks
	}
	return total
}
