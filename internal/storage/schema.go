package storage

// schemaVersion is bumped whenever the DDL below changes shape.
const schemaVersion = 1

// schemaSQL creates the files table, its FTS5 shadow, the trigger set that
// keeps them in sync, the trigram posting table, and the schema-version
// singleton. Grounded on original_source/src/db/schema.rs, translated from
// rusqlite's execute_batch to SQLite DDL runnable over mattn/go-sqlite3.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS files (
	file_id     INTEGER PRIMARY KEY AUTOINCREMENT,
	path        TEXT NOT NULL UNIQUE,
	filename    TEXT NOT NULL,
	content     TEXT NOT NULL,
	fingerprint INTEGER NOT NULL,
	indexed_at  TEXT NOT NULL,
	size_bytes  INTEGER GENERATED ALWAYS AS (length(content)) STORED
);

CREATE INDEX IF NOT EXISTS idx_files_path ON files(path);
CREATE INDEX IF NOT EXISTS idx_files_filename ON files(filename);

CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
	path, filename, content,
	content='files',
	content_rowid='file_id',
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS files_ai AFTER INSERT ON files BEGIN
	INSERT INTO files_fts(rowid, path, filename, content)
	VALUES (new.file_id, new.path, new.filename, new.content);
END;

CREATE TRIGGER IF NOT EXISTS files_ad AFTER DELETE ON files BEGIN
	INSERT INTO files_fts(files_fts, rowid, path, filename, content)
	VALUES ('delete', old.file_id, old.path, old.filename, old.content);
END;

CREATE TRIGGER IF NOT EXISTS files_au AFTER UPDATE ON files BEGIN
	INSERT INTO files_fts(files_fts, rowid, path, filename, content)
	VALUES ('delete', old.file_id, old.path, old.filename, old.content);
	INSERT INTO files_fts(rowid, path, filename, content)
	VALUES (new.file_id, new.path, new.filename, new.content);
END;

CREATE TABLE IF NOT EXISTS trigrams (
	trigram  BLOB PRIMARY KEY,
	file_ids BLOB NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS schema_info (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
) WITHOUT ROWID;

INSERT OR IGNORE INTO schema_info (key, value) VALUES ('version', '1');
`
