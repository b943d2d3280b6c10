package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/index"
	"github.com/Veraticus/modality/internal/model"
	"github.com/Veraticus/modality/internal/storage"
	"github.com/Veraticus/modality/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDir_RoundTrip(t *testing.T) {
	root := t.TempDir()
	chunks := sampleChunks()
	manifest := testutil.Manifest(3, chunks)
	require.NoError(t, storage.WriteDir(root, manifest, chunks))

	assert.FileExists(t, filepath.Join(root, "manifest.json"))
	assert.FileExists(t, filepath.Join(root, "categories", "A", "index.json"))
	assert.FileExists(t, filepath.Join(root, "categories", "B", "chunks", "b1.json"))

	src := storage.NewDirSource(root)
	ctx := context.Background()

	gotManifest, gotChunks, err := storage.ReadAll(ctx, src)
	require.NoError(t, err)
	assert.True(t, manifest.CreatedAt.Equal(gotManifest.CreatedAt))
	assert.Equal(t, manifest.Categories, gotManifest.Categories)
	assert.Equal(t, chunks, gotChunks)
}

func TestDirSource_Missing(t *testing.T) {
	src := storage.NewDirSource(t.TempDir())
	ctx := context.Background()

	_, err := src.Manifest(ctx)
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = src.ChunkIDs(ctx, model.CategoryA)
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = src.Chunk(ctx, model.CategoryA, "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = src.Chunk(ctx, model.CategoryA, "../manifest")
	assert.ErrorIs(t, err, storage.ErrInvalidChunkID)

	idx := index.Load(ctx, src, index.Options{Dimension: 3}, nil)
	assert.False(t, idx.Loaded())
	assert.ErrorIs(t, idx.LoadErr(), common.ErrIndexNotLoaded)
}

func TestDirSource_MalformedChunkIsSkippedByIndex(t *testing.T) {
	root := t.TempDir()
	chunks := sampleChunks()
	require.NoError(t, storage.WriteDir(root, testutil.Manifest(3, chunks), chunks))

	bad := filepath.Join(root, "categories", "A", "chunks", "a1.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0600))

	src := storage.NewDirSource(root)
	_, err := src.Chunk(context.Background(), model.CategoryA, "a1")
	assert.Error(t, err)

	idx := index.Load(context.Background(), src, index.Options{Dimension: 3}, nil)
	require.True(t, idx.Loaded())
	assert.Equal(t, 1, idx.Len(model.CategoryA))
	assert.Equal(t, 2, idx.Len(model.CategoryB))
	assert.Equal(t, 1, idx.Skipped())

	_, _, err = storage.ReadAll(context.Background(), src)
	assert.Error(t, err, "a full copy fails on the first bad record")
}

func TestImport_DirToSQLite(t *testing.T) {
	root := t.TempDir()
	chunks := sampleChunks()
	require.NoError(t, storage.WriteDir(root, testutil.Manifest(3, chunks), chunks))

	manifest, read, err := storage.ReadAll(context.Background(), storage.NewDirSource(root))
	require.NoError(t, err)

	store := testutil.SetupTestDB(t)
	require.NoError(t, store.ImportDataset(context.Background(), manifest, read))

	ids, err := store.ChunkIDs(context.Background(), model.CategoryB)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2"}, ids)
}
