// Package scanner is the parallel regex search service: a gitignore-aware
// walk feeding a bounded worker pool, producing line-level matches and a
// file-aggregated logarithmic score for the hybrid ranker. Grounded on
// original_source/src/services/grep.rs (rayon thread pool + ripgrep
// internals), reworked onto golang.org/x/sync/errgroup and the stdlib
// regexp engine.
package scanner

import (
	"bufio"
	"context"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/lci/internal/config"
	lciErrors "github.com/standardbeagle/lci/internal/errors"
)

// Match is one line-level regex hit.
type Match struct {
	Path        string
	LineNumber  int
	LineContent string
	MatchStart  int
	MatchEnd    int
}

// FileScore is one file's aggregated match score, file-aggregated and
// logarithmically scaled so a file with many hits doesn't dominate a file
// with one precise hit (spec.md §4.4).
type FileScore struct {
	Path  string
	Score float64
}

// Service is the parallel regex scanner for one workspace root.
type Service struct {
	root    string
	cfg     config.Scanner
	ignore  *config.GitignoreMatcher
}

// New builds a Service rooted at root. ignore may be nil, in which case no
// gitignore filtering is applied.
func New(root string, cfg config.Scanner, ignore *config.GitignoreMatcher) *Service {
	return &Service{root: root, cfg: cfg, ignore: ignore}
}

func (s *Service) workers() int {
	if s.cfg.Workers > 0 {
		return s.cfg.Workers
	}
	n := runtime.NumCPU()
	if n > 8 {
		return 8
	}
	if n < 1 {
		return 1
	}
	return n
}

// SearchParallel walks the workspace root, running pattern against every
// text file's lines concurrently, and returns up to maxMatches hits
// (0 = cfg.MaxMatches). Matching stops — cooperatively, not forcibly —
// once the limit is reached: files already being scanned are read to the
// end and their surplus matches discarded, and files not yet started are
// skipped.
func (s *Service) SearchParallel(ctx context.Context, pattern string, maxMatches int) ([]Match, error) {
	re, err := compilePattern(pattern, s.cfg.CaseInsensitive)
	if err != nil {
		return nil, err
	}

	limit := maxMatches
	if limit <= 0 {
		limit = s.cfg.MaxMatches
	}

	files, err := s.collectFiles()
	if err != nil {
		return nil, err
	}

	var (
		mu        sync.Mutex
		results   []Match
		count     int64
		cancelled atomic.Bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())

	for _, path := range files {
		path := path
		g.Go(func() error {
			if cancelled.Load() {
				return nil
			}
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			fileMatches, err := searchFile(path, re)
			if err != nil {
				return nil // unreadable/binary files are skipped, not fatal
			}
			if len(fileMatches) == 0 {
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for _, m := range fileMatches {
				if cancelled.Load() {
					break
				}
				results = append(results, m)
				count++
				if int(count) >= limit {
					cancelled.Store(true)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, lciErrors.NewScannerError(lciErrors.CodeWalkError, s.root, err)
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SearchFiles runs SearchParallel and aggregates the results per file into
// a logarithmically scaled score, sorted descending, truncated to limit.
func (s *Service) SearchFiles(ctx context.Context, pattern string, limit int) ([]FileScore, error) {
	fetchLimit := limit * 10
	if limit <= 0 {
		fetchLimit = s.cfg.MaxMatches
	}
	matches, err := s.SearchParallel(ctx, pattern, fetchLimit)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, m := range matches {
		counts[m.Path]++
	}

	maxCount := 1.0
	for _, c := range counts {
		if float64(c) > maxCount {
			maxCount = float64(c)
		}
	}

	scores := make([]FileScore, 0, len(counts))
	for path, c := range counts {
		score := math.Log1p(float64(c)) / math.Log1p(maxCount)
		scores = append(scores, FileScore{Path: path, Score: score})
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if limit > 0 && len(scores) > limit {
		scores = scores[:limit]
	}
	return scores, nil
}

func compilePattern(pattern string, caseInsensitive bool) (*regexp.Regexp, error) {
	p := pattern
	if caseInsensitive {
		p = "(?i)" + p
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, lciErrors.NewSearchError(lciErrors.CodeInvalidPattern, pattern, err)
	}
	return re, nil
}

// collectFiles walks the root respecting gitignore and hidden-file rules,
// capped at cfg.MaxFilesWalked.
func (s *Service) collectFiles() ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // permission errors on one subtree don't abort the whole walk
		}
		if len(out) >= s.cfg.MaxFilesWalked {
			return filepath.SkipAll
		}

		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			rel = path
		}

		if !s.cfg.IncludeHidden && isHidden(d.Name()) && rel != "." {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if s.ignore != nil && s.ignore.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 && !s.cfg.FollowSymlinks {
			return nil
		}

		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, lciErrors.NewScannerError(lciErrors.CodeWalkError, s.root, err)
	}
	return out, nil
}

func isHidden(name string) bool {
	return len(name) > 1 && name[0] == '.'
}

// searchFile scans one file line by line, returning every matching line.
// Binary files (a NUL byte in the first 8KiB) yield a BINARY_FILE
// ScannerError, which SearchParallel treats as a skip.
func searchFile(path string, re *regexp.Regexp) ([]Match, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sniff := make([]byte, 8192)
	n, _ := f.Read(sniff)
	for i := 0; i < n; i++ {
		if sniff[i] == 0 {
			return nil, lciErrors.NewScannerError(lciErrors.CodeBinaryFile, path, nil)
		}
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}

	var matches []Match
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		loc := re.FindStringIndex(line)
		if loc == nil {
			continue
		}
		matches = append(matches, Match{
			Path:        path,
			LineNumber:  lineNo,
			LineContent: line,
			MatchStart:  loc[0],
			MatchEnd:    loc[1],
		})
	}
	if err := scanner.Err(); err != nil {
		return matches, err
	}
	return matches, nil
}
