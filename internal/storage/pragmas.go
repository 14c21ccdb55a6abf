package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/standardbeagle/lci/internal/config"
)

// applySteadyStatePragmas configures a freshly opened connection for normal
// operation: WAL journaling, NORMAL durability, a bounded page cache,
// memory-mapped reads, a bounded lock wait, foreign keys, and in-memory
// temp tables. Applied to every pooled connection on acquisition — grounded
// on original_source/src/db/pragmas.rs::apply_pragmas_raw.
func applySteadyStatePragmas(ctx context.Context, conn *sql.Conn, cfg config.Storage) error {
	stmts := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", cfg.CacheKB),
		fmt.Sprintf("PRAGMA mmap_size = %d", cfg.MmapBytes),
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.LockWaitMs),
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, s := range stmts {
		if _, err := conn.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
	}
	return nil
}

// applyBulkIndexingPragmas trades crash durability for write throughput on
// a single connection held across an indexing transaction: synchronous is
// turned off, WAL checkpointing is deferred, and FTS5 automerge is
// disabled so segment merges batch up instead of running per insert.
// Must always be paired with restoreNormalPragmas before the connection
// is returned to the pool — grounded on
// original_source/src/db/pragmas.rs::apply_indexing_pragmas.
func applyBulkIndexingPragmas(ctx context.Context, conn *sql.Conn) error {
	stmts := []string{
		"PRAGMA synchronous = OFF",
		"PRAGMA wal_autocheckpoint = 0",
		"INSERT INTO files_fts(files_fts, rank) VALUES('automerge', 0)",
	}
	for _, s := range stmts {
		if _, err := conn.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
	}
	return nil
}

// restoreNormalPragmas re-enables crash safety FIRST, then runs FTS5
// housekeeping (optimize + re-enable automerge) and refreshes query
// planner statistics. The ordering is load-bearing: safety must land
// before housekeeping because housekeeping can fail (disk full) and must
// never leave a durability-off connection behind — grounded on
// original_source/src/db/pragmas.rs::restore_normal_pragmas.
func restoreNormalPragmas(ctx context.Context, conn *sql.Conn) error {
	// Safety first — non-negotiable.
	if _, err := conn.ExecContext(ctx, "PRAGMA synchronous = NORMAL"); err != nil {
		return fmt.Errorf("restore synchronous: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA wal_autocheckpoint = 1000"); err != nil {
		return fmt.Errorf("restore wal_autocheckpoint: %w", err)
	}

	// Housekeeping second — may fail without compromising durability.
	if _, err := conn.ExecContext(ctx, "INSERT INTO files_fts(files_fts) VALUES('optimize')"); err != nil {
		return fmt.Errorf("fts optimize: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO files_fts(files_fts, rank) VALUES('automerge', 8)"); err != nil {
		return fmt.Errorf("fts automerge: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	return nil
}
