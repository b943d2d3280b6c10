package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Chunk dataset",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS manifest (
					id INTEGER PRIMARY KEY CHECK (id = 1),
					schema_version INTEGER NOT NULL,
					embedding_model TEXT NOT NULL,
					embedding_dimension INTEGER NOT NULL,
					accelerated BOOLEAN DEFAULT 0,
					created_at DATETIME NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS manifest_categories (
					category TEXT PRIMARY KEY,
					documents INTEGER NOT NULL DEFAULT 0,
					chunks INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE TABLE IF NOT EXISTS chunks (
					category TEXT NOT NULL,
					id TEXT NOT NULL,
					position INTEGER NOT NULL,
					document_id TEXT NOT NULL DEFAULT '',
					text TEXT NOT NULL,
					source TEXT NOT NULL DEFAULT '',
					page INTEGER NOT NULL DEFAULT 0,
					sequence INTEGER NOT NULL DEFAULT 0,
					embedding TEXT NOT NULL,
					PRIMARY KEY (category, id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_chunks_position ON chunks(category, position)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Evaluation history",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS eval_runs (
					id TEXT PRIMARY KEY,
					version TEXT UNIQUE NOT NULL,
					created_at DATETIME NOT NULL,
					accuracy REAL NOT NULL,
					avg_confidence REAL NOT NULL,
					total INTEGER NOT NULL,
					correct INTEGER NOT NULL,
					config TEXT NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS eval_case_results (
					run_id TEXT NOT NULL,
					position INTEGER NOT NULL,
					case_id TEXT NOT NULL,
					query TEXT NOT NULL,
					expected TEXT NOT NULL,
					predicted TEXT NOT NULL,
					source TEXT NOT NULL,
					confidence REAL NOT NULL,
					correct BOOLEAN NOT NULL,
					PRIMARY KEY (run_id, position),
					FOREIGN KEY (run_id) REFERENCES eval_runs(id) ON DELETE CASCADE
				)`,
			})
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	// Get current version
	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		s.logger.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion returns the database's current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return v, nil
}
