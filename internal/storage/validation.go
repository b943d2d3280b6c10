// Package storage provides the persistence layer for chunk datasets and
// evaluation history.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Veraticus/modality/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrInvalidChunkID = errors.New("invalid chunk id")
	ErrInvalidRun     = errors.New("invalid evaluation run")
	ErrInvalidDataset = errors.New("invalid dataset")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateCategory accepts only the two stored partitions.
func validateCategory(category model.Category) error {
	if !category.Valid() {
		return fmt.Errorf("%w: category %q", ErrInvalidDataset, category)
	}
	return nil
}

// validateChunkID rejects ids that cannot double as a file name.
func validateChunkID(id string) error {
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if id != filepath.Base(id) || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidChunkID, id)
	}
	return nil
}

// validateDataset checks a manifest and its chunks before import.
func validateDataset(manifest *model.Manifest, chunks []model.DocumentChunk) error {
	if manifest == nil {
		return fmt.Errorf("%w: manifest", ErrNilParameter)
	}
	if err := manifest.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDataset, err)
	}

	seen := make(map[string]bool, len(chunks))
	for i, c := range chunks {
		if err := validateCategory(c.Metadata.Category); err != nil {
			return fmt.Errorf("chunk at index %d: %w", i, err)
		}
		if err := validateChunkID(c.ID); err != nil {
			return fmt.Errorf("chunk at index %d: %w", i, err)
		}
		key := string(c.Metadata.Category) + "/" + c.ID
		if seen[key] {
			return fmt.Errorf("%w: duplicate chunk %s", ErrInvalidDataset, key)
		}
		seen[key] = true
	}
	return nil
}

// validateRun validates an evaluation run before it is stored.
func validateRun(run *model.EvalRun) error {
	if run == nil {
		return fmt.Errorf("%w: run", ErrNilParameter)
	}
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRun)
	}
	if strings.TrimSpace(run.Version) == "" {
		return fmt.Errorf("%w: missing version", ErrInvalidRun)
	}
	if run.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidRun)
	}
	return nil
}
