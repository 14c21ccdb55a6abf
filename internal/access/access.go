// Package access enforces the path- and pattern-level boundary checks
// applied at every filesystem-touching operation: containment under the
// workspace root, absolute-path rejection, a sensitive-file blocklist, and
// rejection of pathologically expensive regex patterns. Grounded on
// original_source/src/security.rs's error taxonomy, with the checks
// themselves implemented natively since the original only defines the
// error enum.
package access

import (
	"path/filepath"
	"regexp"
	"strings"

	lciErrors "github.com/standardbeagle/lci/internal/errors"
)

// sensitiveNames is the built-in blocklist of filenames never indexed or
// read, regardless of gitignore state (spec.md §4.8 "defense in depth").
var sensitiveNames = map[string]bool{
	".env":            true,
	".env.local":      true,
	".env.production": true,
	".env.development": true,
	".npmrc":          true,
	".netrc":          true,
	"id_rsa":          true,
	"id_ecdsa":        true,
	"id_ed25519":      true,
	"credentials":     true,
	"credentials.json": true,
}

var sensitiveSuffixes = []string{
	".pem", ".key", ".p12", ".pfx", ".asc", ".gpg",
}

var sensitivePrefixes = []string{
	"id_rsa", "id_ecdsa", "id_ed25519",
}

// Guard validates paths and patterns against one workspace root.
type Guard struct {
	root string
}

// New builds a Guard rooted at the given (already-absolute) workspace root.
func New(root string) *Guard {
	return &Guard{root: filepath.Clean(root)}
}

// CheckPath validates a caller-supplied, workspace-relative path: it must
// be relative, must resolve (after symlink-aware canonicalization) to a
// descendant of the root, and must not name a sensitive file.
func (g *Guard) CheckPath(relPath string) (absPath string, err error) {
	if filepath.IsAbs(relPath) {
		return "", lciErrors.NewAccessError(lciErrors.CodeAbsolutePath, relPath)
	}

	candidate := filepath.Join(g.root, relPath)
	resolved, err := resolveSymlinks(candidate)
	if err != nil {
		resolved = filepath.Clean(candidate) // file may not exist yet (e.g. pre-index); fall back to lexical clean
	}

	if !isDescendant(g.root, resolved) {
		return "", lciErrors.NewAccessError(lciErrors.CodePathTraversal, relPath)
	}

	if IsSensitiveFile(resolved) {
		return "", lciErrors.NewAccessError(lciErrors.CodeSensitiveFile, relPath)
	}

	return resolved, nil
}

// IsSensitiveFile reports whether path names a file the index must never
// ingest or the dispatcher must never read back: env files, credential
// files, private keys, and similar.
func IsSensitiveFile(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	if sensitiveNames[name] {
		return true
	}
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	for _, prefix := range sensitivePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// CheckPattern rejects regex patterns judged pathological before they
// reach the scanner: nested unbounded quantifiers (e.g. `(a+)+`,
// `(.*)*`) are the classic catastrophic-backtracking shape. Go's RE2
// engine (regexp/regexp.Compile) is immune to catastrophic backtracking
// by construction, but the check still runs so a hostile pattern is
// rejected with a clear error instead of silently accepted and merely
// slow under some future engine swap.
func CheckPattern(pattern string) error {
	if len(pattern) > 2000 {
		return lciErrors.NewAccessError(lciErrors.CodeDangerousPattern, pattern)
	}
	if nestedQuantifier.MatchString(pattern) {
		return lciErrors.NewAccessError(lciErrors.CodeDangerousPattern, pattern)
	}
	return nil
}

// nestedQuantifier matches a quantified group immediately followed by
// another quantifier — the shape behind catastrophic backtracking, e.g.
// (a+)+, (a*)+, (a+)*.
var nestedQuantifier = regexp.MustCompile(`\([^()]*[+*][^()]*\)[+*]`)

// resolveSymlinks canonicalizes path, resolving symlinks the same way the
// OS would when opening it, so containment checks can't be bypassed by a
// symlink that points outside the root.
func resolveSymlinks(path string) (string, error) {
	return filepath.EvalSymlinks(path)
}

// isDescendant reports whether resolved is root itself or lies under it.
func isDescendant(root, resolved string) bool {
	rootClean := filepath.Clean(root)
	resolvedClean := filepath.Clean(resolved)
	if resolvedClean == rootClean {
		return true
	}
	rel, err := filepath.Rel(rootClean, resolvedClean)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
