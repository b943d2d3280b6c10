package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/model"
	"github.com/Veraticus/modality/internal/service"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	_ service.ChunkSource   = (*PostgresChunkSource)(nil)
	_ service.DatasetWriter = (*PostgresChunkSource)(nil)
)

// PostgresChunkSource stores a chunk dataset in Postgres. Embeddings are kept
// as float8[]; similarity search stays in process.
type PostgresChunkSource struct {
	pool *pgxpool.Pool
}

// NewPostgresChunkSource connects to dsn and verifies the connection.
func NewPostgresChunkSource(ctx context.Context, dsn string) (*PostgresChunkSource, error) {
	if err := validateString(dsn, "dsn"); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresChunkSource{pool: pool}, nil
}

// Close releases the connection pool.
func (p *PostgresChunkSource) Close() {
	p.pool.Close()
}

// Initialize creates the dataset tables when missing.
func (p *PostgresChunkSource) Initialize(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS modality_manifest (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL,
			embedding_model TEXT NOT NULL,
			embedding_dimension INTEGER NOT NULL,
			accelerated BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create manifest table: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS modality_manifest_categories (
			category TEXT PRIMARY KEY,
			documents INTEGER NOT NULL DEFAULT 0,
			chunks INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create manifest categories table: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS modality_chunks (
			category TEXT NOT NULL,
			id TEXT NOT NULL,
			position INTEGER NOT NULL,
			document_id TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			page INTEGER NOT NULL DEFAULT 0,
			sequence INTEGER NOT NULL DEFAULT 0,
			embedding float8[] NOT NULL,
			PRIMARY KEY (category, id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS modality_chunks_position_idx ON modality_chunks (category, position)`)
	if err != nil {
		return fmt.Errorf("failed to create chunk index: %w", err)
	}
	return nil
}

// ImportDataset replaces the stored dataset in one transaction.
func (p *PostgresChunkSource) ImportDataset(ctx context.Context, manifest *model.Manifest, chunks []model.DocumentChunk) error {
	if err := validateDataset(manifest, chunks); err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			common.LogError(err, "Failed to roll back transaction", nil)
		}
	}()

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM modality_chunks`)
	batch.Queue(`DELETE FROM modality_manifest_categories`)
	batch.Queue(`DELETE FROM modality_manifest`)
	batch.Queue(`
		INSERT INTO modality_manifest (id, schema_version, embedding_model, embedding_dimension, accelerated, created_at)
		VALUES (1, $1, $2, $3, $4, $5)`,
		manifest.SchemaVersion, manifest.EmbeddingModel, manifest.EmbeddingDimension,
		manifest.Accelerated, manifest.CreatedAt)
	for cat, stats := range manifest.Categories {
		batch.Queue(`INSERT INTO modality_manifest_categories (category, documents, chunks) VALUES ($1, $2, $3)`,
			string(cat), stats.Documents, stats.Chunks)
	}

	positions := make(map[model.Category]int)
	for _, c := range chunks {
		cat := c.Metadata.Category
		batch.Queue(`
			INSERT INTO modality_chunks (category, id, position, document_id, text, source, page, sequence, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			string(cat), c.ID, positions[cat], c.DocumentID, c.Text,
			c.Metadata.Source, c.Metadata.Page, c.Sequence, []float64(c.Embedding))
		positions[cat]++
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to store dataset: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit dataset: %w", err)
	}
	return nil
}

// Manifest returns the stored dataset manifest.
func (p *PostgresChunkSource) Manifest(ctx context.Context) (*model.Manifest, error) {
	var (
		m         model.Manifest
		createdAt time.Time
	)
	err := p.pool.QueryRow(ctx, `
		SELECT schema_version, embedding_model, embedding_dimension, accelerated, created_at
		FROM modality_manifest WHERE id = 1`).Scan(
		&m.SchemaVersion, &m.EmbeddingModel, &m.EmbeddingDimension, &m.Accelerated, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("manifest: %w", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m.CreatedAt = createdAt.UTC()

	rows, err := p.pool.Query(ctx, `SELECT category, documents, chunks FROM modality_manifest_categories`)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest categories: %w", err)
	}
	defer rows.Close()

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
func (p *PostgresChunkSource) ChunkIDs(ctx context.Context, category model.Category) ([]string, error) {
	if err := validateCategory(category); err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx,
		`SELECT id FROM modality_chunks WHERE category = $1 ORDER BY position`, string(category))
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunk ids: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Chunk returns one chunk record.
func (p *PostgresChunkSource) Chunk(ctx context.Context, category model.Category, id string) (*model.DocumentChunk, error) {
	if err := validateCategory(category); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var (
		c         model.DocumentChunk
		embedding []float64
	)
	err := p.pool.QueryRow(ctx, `
		SELECT id, document_id, text, source, page, sequence, embedding
		FROM modality_chunks WHERE category = $1 AND id = $2`, string(category), id).Scan(
		&c.ID, &c.DocumentID, &c.Text, &c.Metadata.Source, &c.Metadata.Page, &c.Sequence, &embedding)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s/%s: %w", category, id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %s: %w", id, err)
	}
	c.Embedding = model.Vector(embedding)
	c.Metadata.Category = category
	return &c, nil
}
