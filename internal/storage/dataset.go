package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/model"
)

// ImportDataset replaces the stored dataset with manifest and chunks in a
// single transaction. Chunk order within each category is preserved.
func (s *SQLiteStorage) ImportDataset(ctx context.Context, manifest *model.Manifest, chunks []model.DocumentChunk) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateDataset(manifest, chunks); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	for _, table := range []string{"chunks", "manifest_categories", "manifest"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO manifest (id, schema_version, embedding_model, embedding_dimension, accelerated, created_at)
		VALUES (1, ?, ?, ?, ?, ?)`,
		manifest.SchemaVersion, manifest.EmbeddingModel, manifest.EmbeddingDimension,
		manifest.Accelerated, manifest.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}

	for cat, stats := range manifest.Categories {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO manifest_categories (category, documents, chunks) VALUES (?, ?, ?)`,
			string(cat), stats.Documents, stats.Chunks)
		if err != nil {
			return fmt.Errorf("failed to save manifest category %s: %w", cat, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (category, id, position, document_id, text, source, page, sequence, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	positions := make(map[model.Category]int)
	for _, c := range chunks {
		embedding, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding for %s: %w", c.ID, err)
		}
		cat := c.Metadata.Category
		_, err = stmt.ExecContext(ctx,
			string(cat), c.ID, positions[cat], c.DocumentID, c.Text,
			c.Metadata.Source, c.Metadata.Page, c.Sequence, string(embedding))
		if err != nil {
			return fmt.Errorf("failed to save chunk %s: %w", c.ID, err)
		}
		positions[cat]++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dataset: %w", err)
	}

	common.LogDebug("Imported dataset", common.Fields{
		"chunks":    len(chunks),
		"model":     manifest.EmbeddingModel,
		"dimension": manifest.EmbeddingDimension,
	})
	return nil
}

// Manifest returns the stored dataset manifest.
func (s *SQLiteStorage) Manifest(ctx context.Context) (*model.Manifest, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		m         model.Manifest
		createdAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT schema_version, embedding_model, embedding_dimension, accelerated, created_at
		FROM manifest WHERE id = 1`).Scan(
		&m.SchemaVersion, &m.EmbeddingModel, &m.EmbeddingDimension, &m.Accelerated, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("manifest: %w", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m.CreatedAt = createdAt.UTC()

	rows, err := s.db.QueryContext(ctx, `SELECT category, documents, chunks FROM manifest_categories`)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	m.Categories = make(map[model.Category]model.CategoryStats)
	for rows.Next() {
		var (
			cat   string
			stats model.CategoryStats
		)
		if err := rows.Scan(&cat, &stats.Documents, &stats.Chunks); err != nil {
			return nil, fmt.Errorf("failed to scan manifest category: %w", err)
		}
		m.Categories[model.Category(cat)] = stats
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest categories: %w", err)
	}
	return &m, nil
}

// ChunkIDs returns the ids stored for category in import order.
func (s *SQLiteStorage) ChunkIDs(ctx context.Context, category model.Category) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateCategory(category); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM chunks WHERE category = ? ORDER BY position`, string(category))
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Chunk returns one chunk record.
func (s *SQLiteStorage) Chunk(ctx context.Context, category model.Category, id string) (*model.DocumentChunk, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateCategory(category); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var (
		c         model.DocumentChunk
		embedding string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, text, source, page, sequence, embedding
		FROM chunks WHERE category = ? AND id = ?`, string(category), id).Scan(
		&c.ID, &c.DocumentID, &c.Text, &c.Metadata.Source, &c.Metadata.Page, &c.Sequence, &embedding)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s/%s: %w", category, id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(embedding), &c.Embedding); err != nil {
		return nil, fmt.Errorf("chunk %s has a malformed embedding: %w", id, err)
	}
	c.Metadata.Category = category
	return &c, nil
}
