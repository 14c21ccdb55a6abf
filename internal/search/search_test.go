package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/lci/internal/config"
	"github.com/standardbeagle/lci/internal/fulltext"
	"github.com/standardbeagle/lci/internal/scanner"
	"github.com/standardbeagle/lci/internal/storage"
	"github.com/standardbeagle/lci/internal/trigram"
)

type fakeResolver struct {
	byID   map[uint32]string
	byPath map[string]uint32
}

func (f *fakeResolver) ResolvePaths(ctx context.Context, ids []uint32) (map[uint32]string, error) {
	out := make(map[uint32]string)
	for _, id := range ids {
		if p, ok := f.byID[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeResolver) ResolveFileIDs(ctx context.Context, paths []string) (map[string]uint32, error) {
	out := make(map[string]uint32)
	for _, p := range paths {
		if id, ok := f.byPath[p]; ok {
			out[p] = id
		}
	}
	return out, nil
}

func (f *fakeResolver) PathAndContent(ctx context.Context, fileID uint32) (string, string, error) {
	return f.byID[fileID], "", nil
}

type fakeFTSStore struct {
	hits []storage.FTSHit
}

func (f *fakeFTSStore) FTSSearch(ctx context.Context, ftsQuery string, limit int) ([]storage.FTSHit, error) {
	return f.hits, nil
}

func TestSearchMergesMultipleSignalsWithBonus(t *testing.T) {
	resolver := &fakeResolver{
		byID:   map[uint32]string{1: "auth.go"},
		byPath: map[string]uint32{"auth.go": 1},
	}
	ftsStore := &fakeFTSStore{hits: []storage.FTSHit{{FileID: 1, Rank: -7.5}}} // 0.5 normalized
	ftsSvc := fulltext.New(ftsStore, config.Search{FTSReference: 15.0})

	dir := t.TempDir()
	trigramIdx := trigram.New()
	trigramIdx.AddFile(1, []byte("func authenticate"))

	scanSvc := scanner.New(dir, config.Scanner{MaxFilesWalked: 100, MaxMatches: 100, Workers: 2}, nil)

	cfg := config.Search{
		FTSWeight: 0.4, GrepWeight: 0.4, TrigramWeight: 0.2,
		TrigramBase: 0.5, MultiSourceBonus: 0.1, DefaultLimit: 10,
	}
	svc := New(resolver, ftsSvc, scanSvc, trigramIdx, cfg)

	results, err := svc.Search(context.Background(), "auth", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "auth.go", results[0].Path)
	assert.True(t, results[0].Sources.FTS)
	assert.True(t, results[0].Sources.Trigram)
	// fts: 0.5*0.4=0.2, trigram: 0.5*0.2=0.1, bonus: 0.1*(2-1)=0.1 -> 0.4
	assert.InDelta(t, 0.4, results[0].Score.Float64(), 0.0001)
}

func TestSearchZeroLimitUsesDefault(t *testing.T) {
	resolver := &fakeResolver{byID: map[uint32]string{}, byPath: map[string]uint32{}}
	ftsSvc := fulltext.New(&fakeFTSStore{}, config.Search{FTSReference: 15.0})
	dir := t.TempDir()
	scanSvc := scanner.New(dir, config.Scanner{MaxFilesWalked: 100, MaxMatches: 100, Workers: 1}, nil)
	trigramIdx := trigram.New()

	cfg := config.Search{FTSWeight: 0.4, GrepWeight: 0.4, TrigramWeight: 0.2, DefaultLimit: 7}
	svc := New(resolver, ftsSvc, scanSvc, trigramIdx, cfg)

	assert.Equal(t, 7, svc.effectiveLimit(0))
	assert.Equal(t, 3, svc.effectiveLimit(3))
}

func TestSearchNoResultsReturnsEmpty(t *testing.T) {
	resolver := &fakeResolver{byID: map[uint32]string{}, byPath: map[string]uint32{}}
	ftsSvc := fulltext.New(&fakeFTSStore{}, config.Search{FTSReference: 15.0})
	dir := t.TempDir()
	scanSvc := scanner.New(dir, config.Scanner{MaxFilesWalked: 100, MaxMatches: 100, Workers: 1}, nil)
	trigramIdx := trigram.New()

	cfg := config.Search{FTSWeight: 0.4, GrepWeight: 0.4, TrigramWeight: 0.2, DefaultLimit: 10}
	svc := New(resolver, ftsSvc, scanSvc, trigramIdx, cfg)

	results, err := svc.Search(context.Background(), "xyznonexistent123", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
