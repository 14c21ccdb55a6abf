// Package storage is the persistent relational store backing files,
// full-text postings, and trigram bitmaps for one workspace. It owns the
// connection pool, the pragma regimes of §4.1, and the batch operations
// the indexer and search layers build on.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/standardbeagle/lci/internal/config"
	lciErrors "github.com/standardbeagle/lci/internal/errors"
)

var driverSeq int64

// Store is one workspace's persistent store: a pooled *sql.DB plus the
// pragma regime applied to every connection drawn from it.
type Store struct {
	db   *sql.DB
	path string
	cfg  config.Storage
}

// CachePath derives the stable on-disk location for a workspace's store:
// a 16-hex-digit xxh3-style hash of the (cleaned, absolute) root under the
// user cache directory, so index data never pollutes the workspace itself
// (spec.md §6 "Persisted state layout").
func CachePath(root string, cacheDirOverride string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	cacheDir := cacheDirOverride
	if cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return "", err
		}
		cacheDir = filepath.Join(base, "lci")
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", err
	}

	sum := xxhash.Sum64String(abs)
	name := fmt.Sprintf("%016x.db", sum)
	return filepath.Join(cacheDir, name), nil
}

// Open opens (creating if absent) the SQLite store at path, applying the
// schema and registering the steady-state pragma regime on every
// connection the pool hands out.
func Open(ctx context.Context, path string, cfg config.Storage) (*Store, error) {
	driverName := fmt.Sprintf("sqlite3_lci_%d", atomic.AddInt64(&driverSeq, 1))
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return nil // steady-state pragmas are applied via database/sql below, post-acquire
		},
	})

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_txlock=immediate", path, cfg.LockWaitMs)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "open", err)
	}

	db.SetMaxOpenConns(cfg.PoolSize)
	db.SetMaxIdleConns(cfg.IdleSize)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, path: path, cfg: cfg}

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, lciErrors.NewStorageError(lciErrors.CodePoolError, "acquire", err)
	}
	defer conn.Close()

	if err := applySteadyStatePragmas(ctx, conn, cfg); err != nil {
		db.Close()
		return nil, lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "pragma", err)
	}
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, lciErrors.NewStorageError(lciErrors.CodeMigrationError, "schema", err)
	}

	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// acquire pulls one pooled connection and applies the steady-state pragma
// regime, since database/sql may hand back a brand-new connection that
// never saw Open's initial application.
func (s *Store) acquire(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, lciErrors.NewStorageError(lciErrors.CodePoolError, "acquire", err)
	}
	if err := applySteadyStatePragmas(ctx, conn, s.cfg); err != nil {
		conn.Close()
		return nil, lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "pragma", err)
	}
	return conn, nil
}

// FileRecord is one row of the files table as seen by the batch API.
type FileRecord struct {
	Path        string
	Filename    string
	Content     string
	Fingerprint uint64
}

// UpsertFiles inserts or updates a batch of file records inside a single
// immediate write transaction, returning the FileId of each record in
// exactly the input order — callers (the indexer) zip this against the
// input slice, so the ordering guarantee is load-bearing (spec.md §4.5).
// Uses the engine's RETURNING clause rather than last-insert-rowid, which
// is undefined on the conflict-update path (spec.md §4.1).
func (s *Store) UpsertFiles(ctx context.Context, records []FileRecord) ([]uint32, error) {
	if len(records) == 0 {
		return nil, nil
	}
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "begin", err)
	}
	defer tx.Rollback()

	ids := make([]uint32, 0, len(records))
	now := time.Now().UTC().Format(time.RFC3339Nano)
	const q = `
		INSERT INTO files (path, filename, content, fingerprint, indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			filename = excluded.filename,
			content = excluded.content,
			fingerprint = excluded.fingerprint,
			indexed_at = excluded.indexed_at
		RETURNING file_id`

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return nil, lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "prepare upsert", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var id uint32
		if err := stmt.QueryRowContext(ctx, r.Path, r.Filename, r.Content, r.Fingerprint, now).Scan(&id); err != nil {
			return nil, lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "upsert", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "commit", err)
	}
	return ids, nil
}

// DeleteByPaths removes the given paths' file records (and, via trigger,
// their full-text postings) inside one transaction.
func (s *Store) DeleteByPaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM files WHERE path = ?")
	if err != nil {
		return lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "prepare delete", err)
	}
	defer stmt.Close()

	for _, p := range paths {
		if _, err := stmt.ExecContext(ctx, p); err != nil {
			return lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "delete", err)
		}
	}
	return lciWrap(tx.Commit())
}

func lciWrap(err error) error {
	if err == nil {
		return nil
	}
	return lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "commit", err)
}

// AllFingerprints bulk-reads (path, fingerprint) pairs for every indexed
// file, used by the indexer to build its in-memory change-detection map
// in one round trip (spec.md §4.5).
func (s *Store) AllFingerprints(ctx context.Context) (map[string]uint64, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, "SELECT path, fingerprint FROM files")
	if err != nil {
		return nil, lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "query fingerprints", err)
	}
	defer rows.Close()

	out := make(map[string]uint64)
	for rows.Next() {
		var path string
		var fp uint64
		if err := rows.Scan(&path, &fp); err != nil {
			return nil, lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "scan fingerprint", err)
		}
		out[path] = fp
	}
	return out, rows.Err()
}

// FileCount returns the number of indexed files.
func (s *Store) FileCount(ctx context.Context) (int, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var n int
	err = conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&n)
	if err != nil {
		return 0, lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "count", err)
	}
	return n, nil
}

// PathAndContent resolves a FileID to its stored path and content.
func (s *Store) PathAndContent(ctx context.Context, fileID uint32) (path, content string, err error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return "", "", err
	}
	defer conn.Close()

	err = conn.QueryRowContext(ctx, "SELECT path, content FROM files WHERE file_id = ?", fileID).Scan(&path, &content)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", "", lciErrors.NewStorageError(lciErrors.CodeFileNotFound, "lookup", err)
		}
		return "", "", lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "lookup", err)
	}
	return path, content, nil
}

// ResolvePaths resolves a set of FileIDs to their paths in one query,
// dropping any FileID that no longer exists (the result is simply absent
// from the map — spec.md §7 "missing paths during result enrichment").
func (s *Store) ResolvePaths(ctx context.Context, ids []uint32) (map[uint32]string, error) {
	out := make(map[uint32]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}
	q := fmt.Sprintf("SELECT file_id, path FROM files WHERE file_id IN (%s)", placeholders)
	rows, err := conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "resolve paths", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uint32
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "scan path", err)
		}
		out[id] = path
	}
	return out, rows.Err()
}

// ResolveFileIDs resolves a set of stored (absolute) file paths to their
// FileIDs in one query, the reverse of ResolvePaths. A path with no
// indexed file is simply absent from the result map.
func (s *Store) ResolveFileIDs(ctx context.Context, paths []string) (map[string]uint32, error) {
	out := make(map[string]uint32, len(paths))
	if len(paths) == 0 {
		return out, nil
	}
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	placeholders := make([]byte, 0, len(paths)*2)
	args := make([]any, 0, len(paths))
	for i, p := range paths {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, p)
	}
	q := fmt.Sprintf("SELECT path, file_id FROM files WHERE path IN (%s)", placeholders)
	rows, err := conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "resolve file ids", err)
	}
	defer rows.Close()

	for rows.Next() {
		var path string
		var id uint32
		if err := rows.Scan(&path, &id); err != nil {
			return nil, lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "scan file id", err)
		}
		out[path] = id
	}
	return out, rows.Err()
}

// BulkIndex acquires a single dedicated connection, applies the bulk
// indexing pragma regime, runs fn inside it, and — regardless of fn's
// outcome — restores the steady-state regime before the connection is
// released back to the pool (spec.md §4.1's non-negotiable ordering:
// safety before housekeeping, always).
func (s *Store) BulkIndex(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return lciErrors.NewStorageError(lciErrors.CodePoolError, "acquire", err)
	}
	defer conn.Close()

	if err := applySteadyStatePragmas(ctx, conn, s.cfg); err != nil {
		return lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "pragma", err)
	}
	if err := applyBulkIndexingPragmas(ctx, conn); err != nil {
		return lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "bulk pragma", err)
	}

	fnErr := fn(ctx, conn)

	// Restore runs unconditionally, success or failure of fn, so a
	// durability-off connection is never returned to the pool.
	if restoreErr := restoreNormalPragmas(ctx, conn); restoreErr != nil {
		if fnErr != nil {
			return fnErr
		}
		return lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "restore pragma", restoreErr)
	}
	return fnErr
}

// FTSHit is one ranked result from the full-text index.
type FTSHit struct {
	FileID uint32
	Rank   float64 // negative BM25; more negative is a better match
}

// FTSSearch runs a (already-preprocessed) FTS5 MATCH query with field
// weights (path=5, filename=10, content=1) favoring base-name matches,
// returning up to limit hits ordered by bm25.
func (s *Store) FTSSearch(ctx context.Context, ftsQuery string, limit int) ([]FTSHit, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	const q = `
		SELECT file_id, bm25(files_fts, 5.0, 10.0, 1.0) AS rank
		FROM files_fts
		WHERE files_fts MATCH ?
		ORDER BY rank
		LIMIT ?`
	rows, err := conn.QueryContext(ctx, q, ftsQuery, limit)
	if err != nil {
		return nil, lciErrors.NewSearchError(lciErrors.CodeInvalidPattern, ftsQuery, err)
	}
	defer rows.Close()

	var hits []FTSHit
	for rows.Next() {
		var h FTSHit
		if err := rows.Scan(&h.FileID, &h.Rank); err != nil {
			return nil, lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "scan fts hit", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// TrigramEntry is one row of the trigram posting table.
type TrigramEntry struct {
	Key    [3]byte
	Bitmap []byte
}

// LoadTrigrams reads every stored trigram posting, for the in-memory index
// to deserialize at workspace-open time.
func (s *Store) LoadTrigrams(ctx context.Context) ([]TrigramEntry, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, "SELECT trigram, file_ids FROM trigrams")
	if err != nil {
		return nil, lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "load trigrams", err)
	}
	defer rows.Close()

	var out []TrigramEntry
	for rows.Next() {
		var key, bitmap []byte
		if err := rows.Scan(&key, &bitmap); err != nil {
			return nil, lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "scan trigram", err)
		}
		if len(key) != 3 {
			continue // malformed entry, ignored silently per spec.md §4.2
		}
		out = append(out, TrigramEntry{Key: [3]byte{key[0], key[1], key[2]}, Bitmap: bitmap})
	}
	return out, rows.Err()
}

// ApplyTrigramDelta persists the dirty-set output of the in-memory trigram
// index: upserts for non-empty postings, deletes for postings that became
// empty. Runs inside one transaction on a pooled connection — the trigram
// write lock is already dropped by the time this is called, since
// persistence only needs a read view (spec.md §4.5).
func (s *Store) ApplyTrigramDelta(ctx context.Context, upserts []TrigramEntry, deletes [][3]byte) error {
	if len(upserts) == 0 && len(deletes) == 0 {
		return nil
	}
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "begin", err)
	}
	defer tx.Rollback()

	if len(upserts) > 0 {
		stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO trigrams (trigram, file_ids) VALUES (?, ?)")
		if err != nil {
			return lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "prepare trigram upsert", err)
		}
		defer stmt.Close()
		for _, e := range upserts {
			if _, err := stmt.ExecContext(ctx, e.Key[:], e.Bitmap); err != nil {
				return lciErrors.NewStorageError(lciErrors.CodeTrigramError, "upsert trigram", err)
			}
		}
	}

	if len(deletes) > 0 {
		stmt, err := tx.PrepareContext(ctx, "DELETE FROM trigrams WHERE trigram = ?")
		if err != nil {
			return lciErrors.NewStorageError(lciErrors.CodeSQLiteError, "prepare trigram delete", err)
		}
		defer stmt.Close()
		for _, k := range deletes {
			if _, err := stmt.ExecContext(ctx, k[:]); err != nil {
				return lciErrors.NewStorageError(lciErrors.CodeTrigramError, "delete trigram", err)
			}
		}
	}

	return lciWrap(tx.Commit())
}
