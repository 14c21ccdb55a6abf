// Package errors defines the typed error kinds surfaced across storage,
// search, scanning, indexing, and access control, plus the two transport
// envelopes the dispatcher wraps them in.
package errors

import (
	"fmt"
	"time"
)

// Code is a machine-readable error code, stable across releases so callers
// can branch on it instead of parsing messages.
type Code string

const (
	// Storage codes.
	CodeSQLiteError    Code = "SQLITE_ERROR"
	CodePoolError      Code = "POOL_ERROR"
	CodeMigrationError Code = "MIGRATION_ERROR"
	CodeFileNotFound   Code = "FILE_NOT_FOUND"
	CodeDBLocked       Code = "DB_LOCKED"

	// Search codes.
	CodeInvalidPattern Code = "INVALID_PATTERN"
	CodeTimeout        Code = "TIMEOUT"
	CodeNoResults      Code = "NO_RESULTS"
	CodeCancelled      Code = "CANCELLED"

	// Scanner codes.
	CodeRegexBuildError Code = "REGEX_BUILD_ERROR"
	CodeFileReadError   Code = "FILE_READ_ERROR"
	CodeBinaryFile      Code = "BINARY_FILE"
	CodeWalkError       Code = "WALK_ERROR"

	// Indexer codes.
	CodeFileIndexError Code = "FILE_INDEX_ERROR"
	CodeHashError      Code = "HASH_ERROR"
	CodeTrigramError   Code = "TRIGRAM_ERROR"
	CodeIndexStale     Code = "INDEX_STALE"
	CodeIndexCorrupt   Code = "INDEX_CORRUPT"

	// Access codes.
	CodePathTraversal   Code = "PATH_TRAVERSAL"
	CodeSensitiveFile   Code = "SENSITIVE_FILE"
	CodeDangerousPattern Code = "DANGEROUS_PATTERN"
	CodeAbsolutePath    Code = "ABSOLUTE_PATH"
)

// recoveryHints gives each code a short, user-facing suggestion. Codes not
// present here (rare server faults) get no hint.
var recoveryHints = map[Code]string{
	CodeSQLiteError:     "retry the operation; if it persists, run index with force=true to rebuild",
	CodePoolError:       "the connection pool is exhausted; retry shortly",
	CodeMigrationError:  "delete the workspace cache database and re-run index",
	CodeFileNotFound:    "run index to pick up the file, or check the path",
	CodeDBLocked:        "another process holds the write lock; retry shortly",
	CodeInvalidPattern:  "check the pattern or query syntax",
	CodeTimeout:         "narrow the query or raise the configured timeout",
	CodeNoResults:       "broaden the query or run index with force=true",
	CodeCancelled:       "the request was abandoned by the caller",
	CodeRegexBuildError: "check the pattern syntax",
	CodeFileReadError:   "the file may have been removed or is unreadable; it was skipped",
	CodeBinaryFile:      "binary files are not scanned",
	CodeWalkError:       "check directory permissions under the workspace root",
	CodeFileIndexError:  "run index with force=true to rebuild",
	CodeHashError:       "the file content could not be fingerprinted; it was skipped",
	CodeTrigramError:    "run index with force=true to rebuild the trigram index",
	CodeIndexStale:      "run index to refresh before searching",
	CodeIndexCorrupt:    "run index with force=true to rebuild",
	CodePathTraversal:   "use a path inside the workspace root",
	CodeSensitiveFile:   "sensitive files (credentials, keys, env files) are never indexed or read",
	CodeDangerousPattern: "simplify the regex pattern",
	CodeAbsolutePath:    "supply a path relative to the workspace root",
}

// Hint returns the recovery hint for a code, or "" if none is registered.
func Hint(c Code) string {
	return recoveryHints[c]
}

// StorageError wraps a failure from the persistence layer.
type StorageError struct {
	Code       Code
	Op         string
	Underlying error
	Timestamp  time.Time
}

func NewStorageError(code Code, op string, err error) *StorageError {
	return &StorageError{Code: code, Op: op, Underlying: err, Timestamp: time.Now()}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s (%s) failed: %v — %s", e.Op, e.Code, e.Underlying, Hint(e.Code))
}

func (e *StorageError) Unwrap() error { return e.Underlying }

// SearchError wraps a failure from one of the retrieval signals.
type SearchError struct {
	Code       Code
	Query      string
	Underlying error
	Timestamp  time.Time
}

func NewSearchError(code Code, query string, err error) *SearchError {
	return &SearchError{Code: code, Query: query, Underlying: err, Timestamp: time.Now()}
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search %q failed (%s): %v — %s", e.Query, e.Code, e.Underlying, Hint(e.Code))
}

func (e *SearchError) Unwrap() error { return e.Underlying }

// ScannerError wraps a failure from the parallel regex scanner.
type ScannerError struct {
	Code       Code
	Path       string
	Underlying error
	Timestamp  time.Time
}

func NewScannerError(code Code, path string, err error) *ScannerError {
	return &ScannerError{Code: code, Path: path, Underlying: err, Timestamp: time.Now()}
}

func (e *ScannerError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("scan failed (%s): %v — %s", e.Code, e.Underlying, Hint(e.Code))
	}
	return fmt.Sprintf("scan of %s failed (%s): %v — %s", e.Path, e.Code, e.Underlying, Hint(e.Code))
}

func (e *ScannerError) Unwrap() error { return e.Underlying }

// IndexError wraps a failure during the indexing pipeline.
type IndexError struct {
	Code       Code
	Path       string
	Underlying error
	Timestamp  time.Time
}

func NewIndexError(code Code, path string, err error) *IndexError {
	return &IndexError{Code: code, Path: path, Underlying: err, Timestamp: time.Now()}
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %s failed for %s: %v — %s", e.Code, e.Path, e.Underlying, Hint(e.Code))
}

func (e *IndexError) Unwrap() error { return e.Underlying }

// AccessError wraps a boundary violation (containment, sensitive file,
// dangerous pattern, absolute path).
type AccessError struct {
	Code      Code
	Path      string
	Timestamp time.Time
}

func NewAccessError(code Code, path string) *AccessError {
	return &AccessError{Code: code, Path: path, Timestamp: time.Now()}
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("access denied (%s) for %q: %s", e.Code, e.Path, Hint(e.Code))
}

// clientFixable is the set of codes whose envelope is "invalid params"
// rather than "internal error" — the caller can correct these themselves.
var clientFixable = map[Code]bool{
	CodeInvalidPattern:  true,
	CodeNoResults:       true,
	CodeFileNotFound:    true,
	CodePathTraversal:   true,
	CodeSensitiveFile:   true,
	CodeDangerousPattern: true,
	CodeAbsolutePath:    true,
	CodeIndexStale:      true,
}

// Envelope is the transport-facing wrapper the dispatcher returns for any
// failed tool call.
type Envelope struct {
	Kind    string `json:"kind"` // "invalid_params" or "internal_error"
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// codeOf extracts the Code from any of the typed errors above, or returns
// "" if err doesn't carry one.
func codeOf(err error) (Code, bool) {
	switch e := err.(type) {
	case *StorageError:
		return e.Code, true
	case *SearchError:
		return e.Code, true
	case *ScannerError:
		return e.Code, true
	case *IndexError:
		return e.Code, true
	case *AccessError:
		return e.Code, true
	}
	return "", false
}

// Wrap builds the transport envelope for err, choosing "invalid_params" for
// client-fixable codes and "internal_error" otherwise. Errors with no known
// code are always internal errors.
func Wrap(err error) Envelope {
	code, ok := codeOf(err)
	if !ok {
		return Envelope{Kind: "internal_error", Code: "", Message: err.Error()}
	}
	kind := "internal_error"
	if clientFixable[code] {
		kind = "invalid_params"
	}
	return Envelope{Kind: kind, Code: code, Message: err.Error(), Hint: Hint(code)}
}
