// Package fulltext wraps the storage layer's FTS5 queries with query
// preprocessing and fixed-reference BM25 normalization. Grounded on
// original_source/src/services/fts.rs, translated from rusqlite's
// DbResult plumbing to Go's (T, error) convention.
package fulltext

import (
	"context"
	"strings"

	"github.com/standardbeagle/lci/internal/config"
	"github.com/standardbeagle/lci/internal/storage"
	"github.com/standardbeagle/lci/internal/types"
)

// Store is the subset of *storage.Store the full-text service depends on.
type Store interface {
	FTSSearch(ctx context.Context, ftsQuery string, limit int) ([]storage.FTSHit, error)
}

// Service wraps FTS5 search with query preprocessing and score normalization.
type Service struct {
	store     Store
	reference float64
}

// New builds a Service over store, using cfg.FTSReference as the BM25
// normalization anchor (spec.md §4.3).
func New(store Store, cfg config.Search) *Service {
	ref := cfg.FTSReference
	if ref <= 0 {
		ref = config.DefaultFTSReference
	}
	return &Service{store: store, reference: ref}
}

// Hit is one normalized full-text match.
type Hit struct {
	FileID types.FileID
	Score  types.Score
}

// Search preprocesses query, runs it against the FTS5 index, and
// normalizes BM25 ranks with a fixed reference value rather than
// max-normalizing against the result set — so a strong match set scores
// higher than a weak one instead of every top hit saturating to 1.0.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	ftsQuery := PreprocessQuery(query)
	hits, err := s.store.FTSSearch(ctx, ftsQuery, limit)
	if err != nil {
		return nil, err
	}
	return s.normalize(hits), nil
}

// SearchPhrase wraps phrase in quotes for exact phrase matching, stripping
// any quotes the caller already supplied to avoid a malformed FTS5 query.
func (s *Service) SearchPhrase(ctx context.Context, phrase string, limit int) ([]Hit, error) {
	escaped := strings.ReplaceAll(phrase, `"`, "")
	ftsQuery := `"` + escaped + `"`
	hits, err := s.store.FTSSearch(ctx, ftsQuery, limit)
	if err != nil {
		return nil, err
	}
	return s.normalize(hits), nil
}

// SearchFilename restricts the query to the filename column.
func (s *Service) SearchFilename(ctx context.Context, query string, limit int) ([]Hit, error) {
	preprocessed := preprocessWords(strings.TrimSpace(query))
	ftsQuery := "filename:" + preprocessed
	hits, err := s.store.FTSSearch(ctx, ftsQuery, limit)
	if err != nil {
		return nil, err
	}
	return s.normalize(hits), nil
}

func (s *Service) normalize(hits []storage.FTSHit) []Hit {
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		abs := h.Rank
		if abs < 0 {
			abs = -abs
		}
		normalized := abs / s.reference
		out = append(out, Hit{FileID: types.FileID(h.FileID), Score: types.NewScore(normalized)})
	}
	return out
}

// PreprocessQuery prepares a raw user query for FTS5 MATCH:
//   - a quoted phrase passes through untouched
//   - a "column:rest" prefix for path/filename/content is preserved, and
//     only rest is word-processed
//   - otherwise the whole query is word-processed
func PreprocessQuery(query string) string {
	trimmed := strings.TrimSpace(query)

	if strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) && len(trimmed) > 2 {
		return trimmed
	}

	if col, rest, ok := strings.Cut(trimmed, ":"); ok {
		colLower := strings.ToLower(col)
		if colLower == "filename" || colLower == "path" || colLower == "content" {
			return colLower + ":" + preprocessWords(rest)
		}
	}

	return preprocessWords(trimmed)
}

// preprocessWords strips FTS5 special characters and appends a "*"
// wildcard suffix to tokens of 4 or more characters, leaving short tokens
// (fn, if, do) exact for code-search precision.
func preprocessWords(input string) string {
	stripper := strings.NewReplacer(`"`, "", `'`, "", "(", "", ")", "", "*", "")
	escaped := stripper.Replace(input)

	words := strings.Fields(escaped)
	for i, w := range words {
		if len(w) >= 4 {
			words[i] = w + "*"
		}
	}
	return strings.Join(words, " ")
}
