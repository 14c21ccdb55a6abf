// Package trigram is the in-memory trigram posting index: a map from
// 3-byte windows to RoaringBitmaps of FileIDs, supporting substring
// candidate search by ANDing the bitmaps of every trigram in a query.
// Grounded on original_source/src/services/trigram.rs, reworked with a
// sync.RWMutex in place of Rust's interior-mutability-free ownership.
package trigram

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/standardbeagle/lci/internal/types"
)

// Index is a thread-safe trigram posting-list index. The zero value is not
// usable; construct with New.
type Index struct {
	mu    sync.RWMutex
	index map[types.Trigram]*roaring.Bitmap
	dirty map[types.Trigram]struct{}
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		index: make(map[types.Trigram]*roaring.Bitmap),
		dirty: make(map[types.Trigram]struct{}),
	}
}

// AddFile inserts fileID into the posting list of every trigram extracted
// from content, marking each touched trigram dirty.
func (idx *Index) AddFile(fileID types.FileID, content []byte) {
	trigrams := types.ExtractTrigrams(content)
	if len(trigrams) == 0 {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, tg := range trigrams {
		bm, ok := idx.index[tg]
		if !ok {
			bm = roaring.New()
			idx.index[tg] = bm
		}
		bm.Add(uint32(fileID))
		idx.dirty[tg] = struct{}{}
	}
}

// File pairs a FileID with its content for a batch AddFiles call.
type File struct {
	ID      types.FileID
	Content []byte
}

// AddFiles inserts every file in the batch under a single write-lock
// acquisition (spec.md §9: "the trigram index is updated once per batch,
// not once per file" — load-bearing for indexer throughput, since Phase 2
// would otherwise pay a lock acquisition per file in the batch).
func (idx *Index) AddFiles(files []File) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, f := range files {
		for _, tg := range types.ExtractTrigrams(f.Content) {
			bm, ok := idx.index[tg]
			if !ok {
				bm = roaring.New()
				idx.index[tg] = bm
			}
			bm.Add(uint32(f.ID))
			idx.dirty[tg] = struct{}{}
		}
	}
}

// RemoveFile removes fileID from every trigram's posting list.
// O(total trigrams indexed) — acceptable for the occasional deletion
// between index runs, not for bulk removal (spec.md §4.2 edge cases).
func (idx *Index) RemoveFile(fileID types.FileID) {
	id := uint32(fileID)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for tg, bm := range idx.index {
		if bm.Contains(id) {
			bm.Remove(id)
			idx.dirty[tg] = struct{}{}
		}
	}
}

// Search returns the set of FileIDs whose content contains every trigram
// of query. Returns (nil, false) when query is too short (<3 bytes) to
// extract any trigram — the caller should then skip trigram filtering
// rather than treat it as "no matches" (spec.md §4.2 edge cases, mirroring
// the Rust Option<RoaringBitmap> contract).
func (idx *Index) Search(query []byte) (*roaring.Bitmap, bool) {
	trigrams := types.ExtractTrigrams(query)
	if len(trigrams) == 0 {
		return nil, false
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bitmaps := make([]*roaring.Bitmap, 0, len(trigrams))
	for _, tg := range trigrams {
		bm, ok := idx.index[tg]
		if !ok {
			return roaring.New(), true // a missing trigram means zero files match
		}
		bitmaps = append(bitmaps, bm)
	}

	// Start the AND chain from the smallest bitmap: cheapest clone, fastest
	// intersection, and the one most likely to empty out early.
	sort.Slice(bitmaps, func(i, j int) bool {
		return bitmaps[i].GetCardinality() < bitmaps[j].GetCardinality()
	})

	result := bitmaps[0].Clone()
	for _, bm := range bitmaps[1:] {
		result.And(bm)
		if result.IsEmpty() {
			break
		}
	}
	return result, true
}

// TrigramCount returns the number of distinct trigrams indexed.
func (idx *Index) TrigramCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.index)
}

// TotalRefs returns the sum of posting-list cardinalities across all
// trigrams, a rough measure of index size for stats reporting.
func (idx *Index) TotalRefs() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var total uint64
	for _, bm := range idx.index {
		total += bm.GetCardinality()
	}
	return total
}

// DirtyCount returns the number of trigrams modified since the last DrainDirty.
func (idx *Index) DirtyCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.dirty)
}

// Entry is one trigram's serialized posting list, the unit DrainDirty and
// the full-load/save paths move between the in-memory index and storage.
type Entry struct {
	Key    types.Trigram
	Bitmap []byte
}

// DrainDirty returns the upserts and deletes needed to persist every
// change since the last call, clearing the dirty set. A trigram whose
// bitmap became empty is returned as a delete (and dropped from memory)
// rather than an upsert of an empty bitmap.
func (idx *Index) DrainDirty() (upserts []Entry, deletes []types.Trigram) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	upserts = make([]Entry, 0, len(idx.dirty))
	for tg := range idx.dirty {
		bm, ok := idx.index[tg]
		if !ok || bm.IsEmpty() {
			deletes = append(deletes, tg)
			delete(idx.index, tg)
			continue
		}
		data, err := bm.ToBytes()
		if err != nil {
			// In-memory bitmap serialization has no I/O to fail; treat as
			// an impossible case rather than threading an error return
			// through every caller.
			continue
		}
		upserts = append(upserts, Entry{Key: tg, Bitmap: data})
	}
	idx.dirty = make(map[types.Trigram]struct{})
	return upserts, deletes
}

// LoadEntries replaces the index's posting lists from a full load (the
// workspace-open path), bypassing the dirty tracker since the load already
// reflects persisted state. A malformed entry (a bitmap blob that fails to
// unmarshal) is skipped rather than failing the whole load (spec.md §4.2:
// "ignore malformed entries silently") — one corrupted row in storage must
// not prevent every other trigram from loading.
func (idx *Index) LoadEntries(entries []Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	index := make(map[types.Trigram]*roaring.Bitmap, len(entries))
	for _, e := range entries {
		bm := roaring.New()
		if err := bm.UnmarshalBinary(e.Bitmap); err != nil {
			continue
		}
		index[e.Key] = bm
	}
	idx.index = index
	idx.dirty = make(map[types.Trigram]struct{})
}

// Clear empties the index and its dirty set. Force-mode indexing does not
// call it; it re-adds every walked file to the existing postings instead.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.index = make(map[types.Trigram]*roaring.Bitmap)
	idx.dirty = make(map[types.Trigram]struct{})
}
