package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GitignoreMatcher matches relative paths against a set of gitignore-style
// patterns loaded from one .gitignore file. Matching is glob-based via
// doublestar, the same library the teacher uses for its own glob matching
// (internal/indexing/watcher.go) — this spec generalizes that dependency
// to gitignore semantics instead of hand-rolling a second regex engine
// for patterns doublestar already understands.
type GitignoreMatcher struct {
	patterns []gitignorePattern
}

type gitignorePattern struct {
	glob      string
	negate    bool
	dirOnly   bool
	anchored  bool // pattern contained a "/" other than a trailing one, so it only matches from root
}

// NewGitignoreMatcher returns an empty matcher (everything is included).
func NewGitignoreMatcher() *GitignoreMatcher {
	return &GitignoreMatcher{}
}

// LoadGitignore loads patterns from "<rootPath>/.gitignore". A missing
// file is not an error; the matcher stays empty.
func (m *GitignoreMatcher) LoadGitignore(rootPath string) error {
	f, err := os.Open(filepath.Join(rootPath, ".gitignore"))
	if err != nil {
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.patterns = append(m.patterns, parseGitignoreLine(line))
	}
	return scanner.Err()
}

func parseGitignoreLine(line string) gitignorePattern {
	p := gitignorePattern{}
	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	anchored := strings.Contains(line, "/")
	line = strings.TrimPrefix(line, "/")
	p.anchored = anchored

	if !strings.Contains(line, "/") && !strings.Contains(line, "*") {
		// Bare name (e.g. "node_modules"): matches that name at any depth.
		p.glob = "**/" + line
	} else if anchored {
		p.glob = line
	} else {
		p.glob = "**/" + line
	}
	return p
}

// Match reports whether relPath (slash-separated, relative to the root
// that owns this matcher) is ignored. Later patterns override earlier
// ones, matching git's own precedence rule for negated patterns.
func (m *GitignoreMatcher) Match(relPath string, isDir bool) bool {
	relPath = filepath.ToSlash(relPath)
	ignored := false
	for _, p := range m.patterns {
		// Try the path itself, then each ancestor directory, so a pattern
		// that names a directory also ignores everything beneath it.
		candidate, candidateIsDir := relPath, isDir
		for {
			if !p.dirOnly || candidateIsDir {
				if ok, err := doublestar.Match(p.glob, candidate); err == nil && ok {
					ignored = !p.negate
					break
				}
			}
			i := strings.LastIndex(candidate, "/")
			if i < 0 {
				break
			}
			candidate, candidateIsDir = candidate[:i], true
		}
	}
	return ignored
}
