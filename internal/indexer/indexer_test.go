package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/lci/internal/access"
	"github.com/standardbeagle/lci/internal/config"
	"github.com/standardbeagle/lci/internal/storage"
	"github.com/standardbeagle/lci/internal/trigram"
)

func newTestIndexer(t *testing.T, dir string) (*Indexer, *storage.Store) {
	t.Helper()
	store, err := storage.Open(context.Background(), filepath.Join(dir, "idx.db"), config.Storage{
		PoolSize: 2, IdleSize: 1, LockWaitMs: 2000, CacheKB: 2000, MmapBytes: 8 * 1024 * 1024,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	trigramIdx := trigram.New()
	guard := access.New(dir)
	cfg := config.Index{
		MaxFileSize: 1024 * 1024,
		BatchSize:   500,
		Extensions:  []string{"go"},
	}
	return New(store, trigramIdx, guard, dir, cfg, nil), store
}

func TestIndexIndexesNewFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\nfunc main() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.go"), []byte("package main\nfunc greet() {}\n"), 0o644))

	ix, store := newTestIndexer(t, dir)
	progress, err := ix.Index(context.Background(), false, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.FilesIndexed)

	n, err := store.FileCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIndexIsIncremental(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))

	ix, _ := newTestIndexer(t, dir)
	ctx := context.Background()

	p1, err := ix.Index(ctx, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p1.FilesIndexed)

	p2, err := ix.Index(ctx, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, p2.FilesIndexed)
	assert.Equal(t, 1, p2.FilesUnchanged)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\nfunc main() {}\n"), 0o644))
	p3, err := ix.Index(ctx, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p3.FilesIndexed)
}

func TestIndexDetectsDeletions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))

	ix, store := newTestIndexer(t, dir)
	ctx := context.Background()
	_, err := ix.Index(ctx, false, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))

	p2, err := ix.Index(ctx, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p2.FilesDeleted)

	n, err := store.FileCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIndexSkipsSensitiveFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SECRET=1\n"), 0o644))

	// The store lives outside the walked root: with an empty extension set
	// its database files would otherwise be indexed too.
	store, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "idx.db"), config.Storage{
		PoolSize: 2, IdleSize: 1, LockWaitMs: 2000, CacheKB: 2000, MmapBytes: 8 * 1024 * 1024,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ix := New(store, trigram.New(), access.New(dir), dir, config.Index{
		MaxFileSize: 1024 * 1024,
		BatchSize:   500,
		// Empty extension set matches everything, so only the sensitive-file
		// filter stands between .env and the index.
	}, nil)

	_, err = ix.Index(context.Background(), false, nil)
	require.NoError(t, err)

	n, err := store.FileCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIndexRespectsGitignore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("vendor/\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "vendor", "dep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vendor", "dep", "dep.go"), []byte("package dep\n"), 0o644))

	store, err := storage.Open(context.Background(), filepath.Join(dir, "idx.db"), config.Storage{
		PoolSize: 2, IdleSize: 1, LockWaitMs: 2000, CacheKB: 2000, MmapBytes: 8 * 1024 * 1024,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ignore := config.NewGitignoreMatcher()
	require.NoError(t, ignore.LoadGitignore(dir))

	ix := New(store, trigram.New(), access.New(dir), dir, config.Index{
		MaxFileSize: 1024 * 1024,
		BatchSize:   500,
		Extensions:  []string{"go"},
	}, ignore)

	progress, err := ix.Index(context.Background(), false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.FilesIndexed)

	n, err := store.FileCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIndexFileSingle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "solo.go"), []byte("package main\n"), 0o644))

	ix, _ := newTestIndexer(t, dir)
	id, err := ix.IndexFile(context.Background(), "solo.go")
	require.NoError(t, err)
	assert.NotZero(t, id)
}
