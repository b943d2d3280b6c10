package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/modality/internal/model"
	"github.com/Veraticus/modality/internal/storage"
)

// SetupTestDB creates a migrated in-memory SQLite store that is closed when
// the test ends.
func SetupTestDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

// SetupTestDataset creates a test database holding chunks.
func SetupTestDataset(t *testing.T, dim int, chunks []model.DocumentChunk) *storage.SQLiteStorage {
	t.Helper()

	store := SetupTestDB(t)
	if err := store.ImportDataset(context.Background(), Manifest(dim, chunks), chunks); err != nil {
		t.Fatalf("failed to import dataset: %v", err)
	}
	return store
}
