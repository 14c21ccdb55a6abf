package fulltext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/lci/internal/config"
	"github.com/standardbeagle/lci/internal/storage"
)

func TestPreprocessQueryWildcardSuffix(t *testing.T) {
	assert.Equal(t, "hello* world*", PreprocessQuery("hello world"))
	assert.Equal(t, "fn main*", PreprocessQuery("fn main"))
}

func TestPreprocessQueryPreservesPhrase(t *testing.T) {
	assert.Equal(t, `"exact phrase"`, PreprocessQuery(`"exact phrase"`))
}

func TestPreprocessQueryColumnPrefix(t *testing.T) {
	assert.Equal(t, "filename:auth*", PreprocessQuery("filename:auth"))
	assert.Equal(t, "path:auth*", PreprocessQuery("path:auth"))
	assert.Equal(t, "content:auth*", PreprocessQuery("content:auth"))
}

func TestPreprocessQueryStripsSpecialChars(t *testing.T) {
	assert.Equal(t, "hello*", PreprocessQuery(`he"l'lo()*`))
	assert.Equal(t, "foo bar", PreprocessQuery("foo* bar*"))
}

type fakeStore struct {
	hits []storage.FTSHit
	err  error
	lastQuery string
}

func (f *fakeStore) FTSSearch(ctx context.Context, ftsQuery string, limit int) ([]storage.FTSHit, error) {
	f.lastQuery = ftsQuery
	return f.hits, f.err
}

func TestSearchNormalizesWithFixedReference(t *testing.T) {
	store := &fakeStore{hits: []storage.FTSHit{
		{FileID: 1, Rank: -30.0}, // abs/15 = 2.0 -> clamped to 1.0
		{FileID: 2, Rank: -7.5},  // abs/15 = 0.5
	}}
	svc := New(store, config.Search{FTSReference: 15.0})

	hits, err := svc.Search(context.Background(), "auth", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.InDelta(t, 1.0, hits[0].Score.Float64(), 0.0001)
	assert.InDelta(t, 0.5, hits[1].Score.Float64(), 0.0001)
}

func TestSearchPhraseStripsEmbeddedQuotes(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, config.Search{FTSReference: 15.0})

	_, err := svc.SearchPhrase(context.Background(), `say "hi"`, 10)
	require.NoError(t, err)
	assert.Equal(t, `"say hi"`, store.lastQuery)
}

func TestSearchFilenameRestrictsColumn(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, config.Search{FTSReference: 15.0})

	_, err := svc.SearchFilename(context.Background(), "widget", 10)
	require.NoError(t, err)
	assert.Equal(t, "filename:widget*", store.lastQuery)
}
