// Package search is the hybrid ranker: it merges FTS, parallel-regex, and
// trigram signals into one scored, deduplicated result list. Grounded on
// original_source/src/services/search.rs's merge_results, translated from
// rusqlite's DbResult/SearchError split to Go's single error return.
package search

import (
	"context"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/lci/internal/config"
	"github.com/standardbeagle/lci/internal/fulltext"
	"github.com/standardbeagle/lci/internal/scanner"
	"github.com/standardbeagle/lci/internal/trigram"
	"github.com/standardbeagle/lci/internal/types"
)

// Result is one search hit with its merged score and contributing sources.
type Result struct {
	FileID  types.FileID
	Path    string
	Score   types.Score
	Sources types.Sources
}

// PathResolver resolves FileIDs and paths against the file store. Search
// depends on the narrow interface rather than *storage.Store directly so
// it can be tested against a fake.
type PathResolver interface {
	ResolvePaths(ctx context.Context, ids []uint32) (map[uint32]string, error)
	ResolveFileIDs(ctx context.Context, paths []string) (map[string]uint32, error)
	PathAndContent(ctx context.Context, fileID uint32) (path, content string, err error)
}

// Service is the combined search engine for one workspace.
type Service struct {
	store   PathResolver
	fts     *fulltext.Service
	scan    *scanner.Service
	trigram *trigram.Index
	cfg     config.Search
}

// New builds a Service wiring the three retrieval signals together.
func New(store PathResolver, fts *fulltext.Service, scan *scanner.Service, trigramIdx *trigram.Index, cfg config.Search) *Service {
	return &Service{store: store, fts: fts, scan: scan, trigram: trigramIdx, cfg: cfg}
}

func (s *Service) effectiveLimit(limit int) int {
	if limit > 0 {
		return limit
	}
	return s.cfg.DefaultLimit
}

// Search runs all three signals concurrently — one blocking-pool task
// each, per spec.md §2/§5 — and merges them by spec.md §4.6's rule: each
// signal's score is weighted, merged (saturating add) per file, and a
// multi-source bonus is applied for files more than one signal found.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	limit = s.effectiveLimit(limit)

	var (
		ftsHits     []fulltext.Hit
		grepHits    []scanner.FileScore
		trigramHits *roaring.Bitmap
		trigramOK   bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := s.fts.Search(gctx, query, limit*2)
		if err == nil {
			ftsHits = hits
		}
		return nil // each signal is best-effort; a failing signal just contributes nothing
	})
	g.Go(func() error {
		hits, err := s.scan.SearchFiles(gctx, query, limit*2)
		if err == nil {
			grepHits = hits
		}
		return nil
	})
	g.Go(func() error {
		trigramHits, trigramOK = s.trigram.Search([]byte(query))
		return nil
	})
	g.Wait() // every Go above always returns nil, so the error is never non-nil

	type accum struct {
		score   types.Score
		sources types.Sources
	}
	scores := make(map[types.FileID]*accum)

	for _, h := range ftsHits {
		a, ok := scores[h.FileID]
		if !ok {
			a = &accum{}
			scores[h.FileID] = a
		}
		a.score = a.score.Merge(h.Score.Weighted(s.cfg.FTSWeight))
		a.sources.FTS = true
	}

	if len(grepHits) > 0 {
		pathToID, err := s.resolveGrepPaths(ctx, grepHits)
		if err == nil {
			for _, h := range grepHits {
				id, ok := pathToID[h.Path]
				if !ok {
					continue
				}
				a, ok := scores[id]
				if !ok {
					a = &accum{}
					scores[id] = a
				}
				a.score = a.score.Merge(types.NewScore(h.Score).Weighted(s.cfg.GrepWeight))
				a.sources.Grep = true
			}
		}
	}

	if trigramOK && trigramHits != nil {
		base := s.cfg.TrigramBase
		if base == 0 {
			base = config.DefaultTrigramBase
		}
		it := trigramHits.Iterator()
		for it.HasNext() {
			id := types.FileID(it.Next())
			a, ok := scores[id]
			if !ok {
				a = &accum{}
				scores[id] = a
			}
			a.score = a.score.Merge(types.NewScore(base).Weighted(s.cfg.TrigramWeight))
			a.sources.Trigram = true
		}
	}

	for _, a := range scores {
		n := a.sources.Count()
		if n > 1 {
			bonus := s.cfg.MultiSourceBonus
			if bonus == 0 {
				bonus = config.DefaultMultiSourceBonus
			}
			a.score = a.score.Merge(types.NewScore(bonus * float64(n-1)))
		}
	}

	ids := make([]uint32, 0, len(scores))
	for id := range scores {
		ids = append(ids, uint32(id))
	}
	paths, err := s.store.ResolvePaths(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(scores))
	for id, a := range scores {
		path, ok := paths[uint32(id)]
		if !ok {
			continue // file vanished between scoring and resolution; drop silently
		}
		results = append(results, Result{FileID: id, Path: path, Score: a.score, Sources: a.sources})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SearchFTS runs only the full-text signal.
func (s *Service) SearchFTS(ctx context.Context, query string, limit int) ([]Result, error) {
	limit = s.effectiveLimit(limit)
	hits, err := s.fts.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]uint32, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, uint32(h.FileID))
	}
	paths, err := s.store.ResolvePaths(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		path, ok := paths[uint32(h.FileID)]
		if !ok {
			continue
		}
		results = append(results, Result{
			FileID:  h.FileID,
			Path:    path,
			Score:   h.Score,
			Sources: types.Sources{FTS: true},
		})
	}
	return results, nil
}

// SearchGrep runs only the parallel-regex signal.
func (s *Service) SearchGrep(ctx context.Context, pattern string, limit int) ([]Result, error) {
	limit = s.effectiveLimit(limit)
	hits, err := s.scan.SearchFiles(ctx, pattern, limit)
	if err != nil {
		return nil, err
	}

	pathToID, err := s.resolveGrepPaths(ctx, hits)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		// A grep hit with no matching stored file (e.g. scanned but not
		// indexed) still reports FileID 0 rather than being dropped.
		id := pathToID[h.Path]
		results = append(results, Result{
			FileID:  id,
			Path:    h.Path,
			Score:   types.NewScore(h.Score),
			Sources: types.Sources{Grep: true},
		})
	}
	return results, nil
}

// resolveGrepPaths maps each grep hit's filesystem path to its stored
// FileID in one batched reverse lookup. Grep hits that don't correspond
// to any indexed file (e.g. a file excluded from indexing but still
// scanned) are simply absent from the result.
func (s *Service) resolveGrepPaths(ctx context.Context, hits []scanner.FileScore) (map[string]types.FileID, error) {
	paths := make([]string, len(hits))
	for i, h := range hits {
		paths[i] = h.Path
	}
	idByPath, err := s.store.ResolveFileIDs(ctx, paths)
	if err != nil {
		return nil, err
	}

	out := make(map[string]types.FileID, len(idByPath))
	for path, id := range idByPath {
		out[path] = types.FileID(id)
	}
	return out, nil
}
