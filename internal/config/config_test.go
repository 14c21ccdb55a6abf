package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("/workspace")

	assert.Equal(t, "/workspace", cfg.Project.Root)
	assert.EqualValues(t, DefaultMaxFileSize, cfg.Index.MaxFileSize)
	assert.Equal(t, DefaultBatchSize, cfg.Index.BatchSize)
	assert.InDelta(t, DefaultFTSWeight, cfg.Search.FTSWeight, 0)
	assert.InDelta(t, DefaultGrepWeight, cfg.Search.GrepWeight, 0)
	assert.InDelta(t, DefaultTrigramWeight, cfg.Search.TrigramWeight, 0)
	assert.Greater(t, cfg.Scanner.Workers, 0)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultSearchLimit, cfg.Search.DefaultLimit)
}

func TestLoadKDLOverlay(t *testing.T) {
	dir := t.TempDir()
	kdl := "index {\n  max_file_size 2048\n  respect_gitignore false\n}\nsearch {\n  fts_weight 0.5\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".lci.kdl"), []byte(kdl), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.EqualValues(t, 2048, cfg.Index.MaxFileSize)
	assert.False(t, cfg.Index.RespectGitignore)
	assert.InDelta(t, 0.5, cfg.Search.FTSWeight, 0.0001)
}

func TestLoadTOMLOverlay(t *testing.T) {
	dir := t.TempDir()
	tomlDoc := "[search]\nfts_weight = 0.3\ndefault_limit = 25\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".lci.toml"), []byte(tomlDoc), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, cfg.Search.FTSWeight, 0.0001)
	assert.Equal(t, 25, cfg.Search.DefaultLimit)
}
