package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRejectsRelativeRoot(t *testing.T) {
	_, err := Open(context.Background(), "relative/path")
	require.Error(t, err)
}

func TestOpenRejectsMissingRoot(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}

func TestOpenBuildsWorkingWorkspace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\nfunc main() {}\n"), 0o644))

	ws, err := Open(context.Background(), dir)
	require.NoError(t, err)
	defer ws.Close()

	assert.Equal(t, dir, ws.Root)
	assert.NotNil(t, ws.Search)
	assert.NotNil(t, ws.Indexer)

	progress, err := ws.Indexer.Index(context.Background(), false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.FilesIndexed)
}

func TestManagerOpenWorkspaceSwapsActiveAndClosesPrevious(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	var mgr Manager
	assert.Nil(t, mgr.Active())

	wsA, err := mgr.OpenWorkspace(context.Background(), dirA)
	require.NoError(t, err)
	assert.Same(t, wsA, mgr.Active())

	wsB, err := mgr.OpenWorkspace(context.Background(), dirB)
	require.NoError(t, err)
	assert.Same(t, wsB, mgr.Active())
	assert.NotSame(t, wsA, wsB)

	// wsA's store is now closed; a query against it should fail rather than hang.
	_, statErr := wsA.Store.FileCount(context.Background())
	assert.Error(t, statErr)
}
