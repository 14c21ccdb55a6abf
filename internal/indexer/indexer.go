// Package indexer implements the two-phase incremental indexing pipeline:
// a parallel read/hash/diff phase followed by a sequential, batched write
// phase that holds the trigram write lock across the whole batch run
// rather than per file. Grounded on
// original_source/src/services/indexer.rs, translated from rayon's
// par_iter to golang.org/x/sync/errgroup and from xxh3_64 to
// github.com/cespare/xxhash/v2.
package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/lci/internal/access"
	"github.com/standardbeagle/lci/internal/config"
	lciErrors "github.com/standardbeagle/lci/internal/errors"
	"github.com/standardbeagle/lci/internal/storage"
	"github.com/standardbeagle/lci/internal/trigram"
	"github.com/standardbeagle/lci/internal/types"
)

// Progress reports one indexing cycle's outcome, surfaced to the index
// tool's response and to any caller-supplied progress callback.
type Progress struct {
	FilesProcessed int `json:"files_processed"`
	FilesTotal     int `json:"files_total"`
	FilesIndexed   int `json:"files_indexed"`
	FilesUnchanged int `json:"files_unchanged"`
	FilesDeleted   int `json:"files_deleted"`
}

// ProgressFunc is invoked at each batch boundary, so a long index run can
// report incremental progress to its caller.
type ProgressFunc func(Progress)

// Indexer is the incremental file indexer for one workspace.
type Indexer struct {
	store      *storage.Store
	trigram    *trigram.Index
	guard      *access.Guard
	root       string
	cfg        config.Index
	extensions map[string]bool
	ignore     *config.GitignoreMatcher
}

// New builds an Indexer over store and trigram, rooted at root. ignore may
// be nil, in which case no gitignore filtering is applied — the same
// contract scanner.New uses for the same matcher.
func New(store *storage.Store, trigramIdx *trigram.Index, guard *access.Guard, root string, cfg config.Index, ignore *config.GitignoreMatcher) *Indexer {
	return &Indexer{
		store:      store,
		trigram:    trigramIdx,
		guard:      guard,
		root:       root,
		cfg:        cfg,
		extensions: buildExtensionSet(cfg.Extensions),
		ignore:     ignore,
	}
}

func buildExtensionSet(extensions []string) map[string]bool {
	set := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		set[strings.ToLower(e)] = true
	}
	return set
}

type fileData struct {
	path        string
	content     string
	fingerprint uint64
}

// IndexFile indexes a single relative path outside of a full cycle,
// validating it through the access guard first so a single-file reindex
// can't be used to smuggle a sensitive or out-of-root path into the store.
func (ix *Indexer) IndexFile(ctx context.Context, relPath string) (uint32, error) {
	absPath, err := ix.guard.CheckPath(relPath)
	if err != nil {
		return 0, err
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return 0, lciErrors.NewIndexError(lciErrors.CodeFileIndexError, relPath, err)
	}

	fp := xxhash.Sum64(content)
	ids, err := ix.store.UpsertFiles(ctx, []storage.FileRecord{{
		Path:        absPath,
		Filename:    filepath.Base(absPath),
		Content:     string(content),
		Fingerprint: fp,
	}})
	if err != nil {
		return 0, err
	}

	ix.trigram.AddFile(types.FileID(ids[0]), content)
	upserts, deletes := ix.trigram.DrainDirty()
	entries := make([]storage.TrigramEntry, 0, len(upserts))
	for _, u := range upserts {
		entries = append(entries, storage.TrigramEntry{Key: u.Key, Bitmap: u.Bitmap})
	}
	keys := make([][3]byte, 0, len(deletes))
	for _, d := range deletes {
		keys = append(keys, [3]byte(d))
	}
	if err := ix.store.ApplyTrigramDelta(ctx, entries, keys); err != nil {
		return 0, err
	}

	return ids[0], nil
}

// Stats reports the indexed file count and trigram index size.
func (ix *Indexer) Stats(ctx context.Context) (fileCount int, trigramCount int, err error) {
	fileCount, err = ix.store.FileCount(ctx)
	if err != nil {
		return 0, 0, err
	}
	return fileCount, ix.trigram.TrigramCount(), nil
}

// Index runs one incremental indexing cycle. When force is true, every
// walked file is treated as changed regardless of its stored fingerprint,
// which forces a full rebuild (spec.md §4.5).
func (ix *Indexer) Index(ctx context.Context, force bool, progress ProgressFunc) (Progress, error) {
	existing := make(map[string]uint64)
	if !force {
		var err error
		existing, err = ix.store.AllFingerprints(ctx)
		if err != nil {
			return Progress{}, err
		}
	}
	existingPaths := make(map[string]bool, len(existing))
	for p := range existing {
		existingPaths[p] = true
	}

	paths, err := ix.collectFiles()
	if err != nil {
		return Progress{}, err
	}
	total := len(paths)

	seenPaths := make(map[string]bool, total)
	for _, p := range paths {
		seenPaths[p] = true
	}

	changed, err := ix.readAndHash(ctx, paths, existing)
	if err != nil {
		return Progress{}, err
	}
	filesUnchanged := total - len(changed)

	state := Progress{
		FilesTotal:     total,
		FilesUnchanged: filesUnchanged,
	}

	batchSize := ix.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}

	for start := 0; start < len(changed); start += batchSize {
		end := start + batchSize
		if end > len(changed) {
			end = len(changed)
		}
		batch := changed[start:end]

		records := make([]storage.FileRecord, 0, len(batch))
		for _, f := range batch {
			records = append(records, storage.FileRecord{
				Path:        f.path,
				Filename:    filepath.Base(f.path),
				Content:     f.content,
				Fingerprint: f.fingerprint,
			})
		}

		ids, err := ix.store.UpsertFiles(ctx, records)
		if err != nil {
			return state, err
		}

		// One AddFiles call per batch holds the trigram write lock across
		// the whole batch rather than reacquiring it per file (spec.md §9).
		trigramBatch := make([]trigram.File, len(batch))
		for i, f := range batch {
			trigramBatch[i] = trigram.File{ID: types.FileID(ids[i]), Content: []byte(f.content)}
		}
		ix.trigram.AddFiles(trigramBatch)

		state.FilesIndexed += len(batch)
		state.FilesProcessed += len(batch)

		if progress != nil {
			progress(state)
		}
	}

	var deletedPaths []string
	for p := range existingPaths {
		if !seenPaths[p] {
			deletedPaths = append(deletedPaths, p)
		}
	}
	if len(deletedPaths) > 0 {
		if err := ix.store.DeleteByPaths(ctx, deletedPaths); err != nil {
			return state, err
		}
		state.FilesDeleted = len(deletedPaths)
	}

	if state.FilesIndexed > 0 || state.FilesDeleted > 0 {
		upserts, deletes := ix.trigram.DrainDirty()
		entries := make([]storage.TrigramEntry, 0, len(upserts))
		for _, u := range upserts {
			entries = append(entries, storage.TrigramEntry{Key: u.Key, Bitmap: u.Bitmap})
		}
		keys := make([][3]byte, 0, len(deletes))
		for _, d := range deletes {
			keys = append(keys, [3]byte(d))
		}
		if err := ix.store.ApplyTrigramDelta(ctx, entries, keys); err != nil {
			return state, err
		}
	}

	state.FilesProcessed = total
	if progress != nil {
		progress(state)
	}
	return state, nil
}

// readAndHash is Phase 1: parallel read, fingerprint, and diff against the
// preloaded existing-fingerprint map. No shared mutable state is written
// during the fan-out — each worker only appends to its own slot.
func (ix *Indexer) readAndHash(ctx context.Context, paths []string, existing map[string]uint64) ([]fileData, error) {
	results := make([]*fileData, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			content, err := os.ReadFile(p)
			if err != nil {
				return nil // unreadable files are silently skipped, not fatal
			}

			fp := xxhash.Sum64(content)
			if existing[p] == fp {
				return nil // unchanged
			}

			results[i] = &fileData{path: p, content: string(content), fingerprint: fp}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, lciErrors.NewIndexError(lciErrors.CodeHashError, ix.root, err)
	}

	out := make([]fileData, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// collectFiles walks the root applying gitignore rules (spec.md §4.5's
// "walk the root applying gitignore rules"), the size cap, extension
// whitelist, and sensitive-file filter. ix.ignore is the same
// *config.GitignoreMatcher passed to scanner.New, so Phase 1's walk and
// the scanner's own walk agree on what counts as ignored.
func (ix *Indexer) collectFiles() ([]string, error) {
	var out []string
	err := filepath.WalkDir(ix.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		rel, relErr := filepath.Rel(ix.root, path)
		if relErr != nil {
			rel = path
		}

		if d.IsDir() {
			if !ix.cfg.FollowSymlinks && d.Name() != "." && strings.HasPrefix(d.Name(), ".git") {
				return filepath.SkipDir
			}
			if ix.ignore != nil && rel != "." && ix.ignore.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 && !ix.cfg.FollowSymlinks {
			return nil
		}
		if ix.ignore != nil && ix.ignore.Match(rel, false) {
			return nil
		}

		if !ix.matchesExtension(path) {
			return nil
		}

		info, err := d.Info()
		if err == nil && ix.cfg.MaxFileSize > 0 && info.Size() > ix.cfg.MaxFileSize {
			return nil
		}

		if access.IsSensitiveFile(path) {
			return nil
		}

		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, lciErrors.NewIndexError(lciErrors.CodeFileIndexError, ix.root, err)
	}
	sort.Strings(out)
	return out, nil
}

func (ix *Indexer) matchesExtension(path string) bool {
	if len(ix.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext != "" && ix.extensions[ext] {
		return true
	}
	name := strings.ToLower(filepath.Base(path))
	return ix.extensions[name]
}
