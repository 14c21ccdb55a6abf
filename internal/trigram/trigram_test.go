package trigram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/lci/internal/types"
)

func TestSearchReturnsFalseForShortQuery(t *testing.T) {
	idx := New()
	idx.AddFile(1, []byte("hello world"))

	bm, ok := idx.Search([]byte("hi"))
	assert.False(t, ok)
	assert.Nil(t, bm)
}

func TestSearchReturnsEmptyForUnknownTrigram(t *testing.T) {
	idx := New()
	idx.AddFile(1, []byte("hello world"))

	bm, ok := idx.Search([]byte("xyz"))
	require.True(t, ok)
	assert.True(t, bm.IsEmpty())
}

func TestSearchIntersectsAcrossFiles(t *testing.T) {
	idx := New()
	idx.AddFile(1, []byte("authentication module"))
	idx.AddFile(2, []byte("oauth handshake"))
	idx.AddFile(3, []byte("unrelated content here"))

	bm, ok := idx.Search([]byte("auth"))
	require.True(t, ok)
	assert.True(t, bm.Contains(1))
	assert.True(t, bm.Contains(2))
	assert.False(t, bm.Contains(3))
}

func TestRemoveFileDropsFromAllPostings(t *testing.T) {
	idx := New()
	idx.AddFile(1, []byte("shared trigrams here"))
	idx.AddFile(2, []byte("shared trigrams here too"))

	idx.RemoveFile(1)

	bm, ok := idx.Search([]byte("shared"))
	require.True(t, ok)
	assert.False(t, bm.Contains(1))
	assert.True(t, bm.Contains(2))
}

func TestDrainDirtyProducesUpsertsAndClearsDirtySet(t *testing.T) {
	idx := New()
	idx.AddFile(1, []byte("abcdef"))

	assert.Greater(t, idx.DirtyCount(), 0)

	upserts, deletes := idx.DrainDirty()
	assert.NotEmpty(t, upserts)
	assert.Empty(t, deletes)
	assert.Equal(t, 0, idx.DirtyCount())

	// A second drain with no intervening mutation yields nothing.
	upserts2, deletes2 := idx.DrainDirty()
	assert.Empty(t, upserts2)
	assert.Empty(t, deletes2)
}

func TestDrainDirtyProducesDeleteWhenPostingEmptied(t *testing.T) {
	idx := New()
	idx.AddFile(1, []byte("abc"))
	idx.DrainDirty()

	idx.RemoveFile(1)
	upserts, deletes := idx.DrainDirty()
	assert.Empty(t, upserts)
	assert.NotEmpty(t, deletes)
}

func TestLoadEntriesRoundTrip(t *testing.T) {
	idx := New()
	idx.AddFile(1, []byte("roundtrip content"))
	upserts, _ := idx.DrainDirty()

	entries := make([]Entry, 0, len(upserts))
	for _, u := range upserts {
		entries = append(entries, Entry{Key: u.Key, Bitmap: u.Bitmap})
	}

	fresh := New()
	fresh.LoadEntries(entries)
	assert.Equal(t, idx.TrigramCount(), fresh.TrigramCount())

	bm, ok := fresh.Search([]byte("round"))
	require.True(t, ok)
	assert.True(t, bm.Contains(1))
}

func TestLoadEntriesSkipsMalformedEntrySilently(t *testing.T) {
	idx := New()
	idx.AddFile(1, []byte("roundtrip content"))
	upserts, _ := idx.DrainDirty()
	require.NotEmpty(t, upserts)

	entries := make([]Entry, 0, len(upserts)+1)
	for _, u := range upserts {
		entries = append(entries, Entry{Key: u.Key, Bitmap: u.Bitmap})
	}
	entries = append(entries, Entry{Key: types.Trigram{'z', 'z', 'z'}, Bitmap: []byte("not a roaring bitmap")})

	fresh := New()
	fresh.LoadEntries(entries)
	assert.Equal(t, len(upserts), fresh.TrigramCount())

	bm, ok := fresh.Search([]byte("round"))
	require.True(t, ok)
	assert.True(t, bm.Contains(1))
}

func TestAddFilesIndexesWholeBatchUnderOneLock(t *testing.T) {
	idx := New()
	idx.AddFiles([]File{
		{ID: 1, Content: []byte("authentication module")},
		{ID: 2, Content: []byte("oauth handshake")},
	})

	bm, ok := idx.Search([]byte("auth"))
	require.True(t, ok)
	assert.True(t, bm.Contains(1))
	assert.True(t, bm.Contains(2))

	upserts, _ := idx.DrainDirty()
	assert.NotEmpty(t, upserts)
}

func TestClearEmptiesIndex(t *testing.T) {
	idx := New()
	idx.AddFile(1, []byte("some content"))
	idx.Clear()
	assert.Equal(t, 0, idx.TrigramCount())
	assert.Equal(t, 0, idx.DirtyCount())
}
