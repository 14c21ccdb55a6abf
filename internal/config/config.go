// Package config holds the workspace configuration tree: index limits,
// storage pragma regimes, scanner defaults, and hybrid search weights.
// The struct tree mirrors the teacher's config.Config shape — nested
// structs grouped by concern, defaults as named constants — generalized
// to this spec's components.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
	toml "github.com/pelletier/go-toml/v2"
)

// Defaults, named per spec.md so call sites never hardcode a bare literal.
const (
	DefaultMaxFileSize   = 1024 * 1024 // 1 MiB, spec.md §4.5
	DefaultMaxFileCount  = 10000       // spec.md §4.4
	DefaultMaxMatches    = 1000        // spec.md §4.4
	DefaultBatchSize     = 500         // spec.md §4.5
	DefaultResponseCap   = 512 * 1024  // spec.md §4.7
	DefaultFTSReference  = 15.0        // spec.md §4.3
	DefaultFTSWeight     = 0.40
	DefaultGrepWeight    = 0.40
	DefaultTrigramWeight = 0.20
	DefaultTrigramBase   = 0.5
	DefaultMultiSourceBonus = 0.10
	DefaultSearchLimit   = 50
	DefaultPoolSize      = 4
	DefaultIdleSize      = 1
	DefaultLockWaitMs    = 5000
	DefaultCacheKB       = 8000  // PRAGMA cache_size = -8000 (8 MB)
	DefaultMmapBytes     = 64 * 1024 * 1024
)

// Config is the root configuration tree for one workspace.
type Config struct {
	Project  Project
	Index    Index
	Storage  Storage
	Scanner  Scanner
	Search   Search
	Include  []string
	Exclude  []string
}

type Project struct {
	Root string
}

// Index controls the walker + hasher + batched-writer pipeline (§4.5).
type Index struct {
	MaxFileSize    int64
	Extensions     []string // whitelist; empty means every file, with no text check
	FollowSymlinks bool
	RespectGitignore bool
	BatchSize      int
}

// Storage controls the persistence layer's pool size and pragma regimes (§4.1).
type Storage struct {
	PoolSize     int
	IdleSize     int
	LockWaitMs   int
	CacheKB      int
	MmapBytes    int64
	CacheDir     string // overrides the default user-cache-dir lookup; empty = default
}

// Scanner controls the parallel regex scanner (§4.4).
type Scanner struct {
	MaxFilesWalked int
	MaxMatches     int
	IncludeHidden  bool
	FollowSymlinks bool
	CaseInsensitive bool
	ContextBefore  int
	ContextAfter   int
	Workers        int // 0 = auto (min(NumCPU, 8))
}

// Search controls the hybrid ranker's signal weights (§4.6).
type Search struct {
	FTSWeight         float64
	GrepWeight        float64
	TrigramWeight     float64
	TrigramBase       float64
	MultiSourceBonus  float64
	DefaultLimit      int
	FTSReference      float64
}

// Default returns a Config populated with the constants above, rooted at
// root. Callers load a file on top of this with Load.
func Default(root string) *Config {
	return &Config{
		Project: Project{Root: root},
		Index: Index{
			MaxFileSize:      DefaultMaxFileSize,
			FollowSymlinks:   false,
			RespectGitignore: true,
			BatchSize:        DefaultBatchSize,
			Extensions:       defaultExtensions(),
		},
		Storage: Storage{
			PoolSize:   DefaultPoolSize,
			IdleSize:   DefaultIdleSize,
			LockWaitMs: DefaultLockWaitMs,
			CacheKB:    DefaultCacheKB,
			MmapBytes:  DefaultMmapBytes,
		},
		Scanner: Scanner{
			MaxFilesWalked:  DefaultMaxFileCount,
			MaxMatches:      DefaultMaxMatches,
			IncludeHidden:   false,
			FollowSymlinks:  false,
			CaseInsensitive: false,
			Workers:         autoWorkers(),
		},
		Search: Search{
			FTSWeight:        DefaultFTSWeight,
			GrepWeight:       DefaultGrepWeight,
			TrigramWeight:    DefaultTrigramWeight,
			TrigramBase:      DefaultTrigramBase,
			MultiSourceBonus: DefaultMultiSourceBonus,
			DefaultLimit:     DefaultSearchLimit,
			FTSReference:     DefaultFTSReference,
		},
	}
}

func autoWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		return 8
	}
	if n < 1 {
		return 1
	}
	return n
}

func defaultExtensions() []string {
	return []string{
		"go", "rs", "py", "js", "ts", "tsx", "jsx", "java", "c", "cpp", "h", "hpp",
		"rb", "php", "swift", "kt", "scala", "cs", "sh", "bash",
		"md", "txt", "json", "yaml", "yml", "toml", "sql", "proto",
	}
}

// Load reads a workspace config file. It tries ".lci.kdl" first (the
// teacher's native format) and falls back to ".lci.toml". A missing file
// of either kind is not an error — Default(root) is returned unmodified.
func Load(root string) (*Config, error) {
	cfg := Default(root)

	kdlPath := filepath.Join(root, ".lci.kdl")
	if data, err := os.ReadFile(kdlPath); err == nil {
		if err := loadKDL(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", kdlPath, err)
		}
		return cfg, nil
	}

	tomlPath := filepath.Join(root, ".lci.toml")
	if data, err := os.ReadFile(tomlPath); err == nil {
		var overlay tomlOverlay
		if err := toml.Unmarshal(data, &overlay); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", tomlPath, err)
		}
		overlay.applyTo(cfg)
		return cfg, nil
	}

	return cfg, nil
}

// tomlOverlay is the subset of Config a .lci.toml file may override. It is
// deliberately smaller than Config: only fields with an obvious flat TOML
// shape are exposed, matching the teacher's "config files override a few
// knobs, the rest stays code-default" posture.
type tomlOverlay struct {
	Index struct {
		MaxFileSize      *int64 `toml:"max_file_size"`
		FollowSymlinks   *bool  `toml:"follow_symlinks"`
		RespectGitignore *bool  `toml:"respect_gitignore"`
	}
	Scanner struct {
		MaxFilesWalked  *int  `toml:"max_files_walked"`
		MaxMatches      *int  `toml:"max_matches"`
		IncludeHidden   *bool `toml:"include_hidden"`
		CaseInsensitive *bool `toml:"case_insensitive"`
	}
	Search struct {
		FTSWeight     *float64 `toml:"fts_weight"`
		GrepWeight    *float64 `toml:"grep_weight"`
		TrigramWeight *float64 `toml:"trigram_weight"`
		DefaultLimit  *int     `toml:"default_limit"`
	}
	Include []string
	Exclude []string
}

func (o tomlOverlay) applyTo(cfg *Config) {
	if o.Index.MaxFileSize != nil {
		cfg.Index.MaxFileSize = *o.Index.MaxFileSize
	}
	if o.Index.FollowSymlinks != nil {
		cfg.Index.FollowSymlinks = *o.Index.FollowSymlinks
	}
	if o.Index.RespectGitignore != nil {
		cfg.Index.RespectGitignore = *o.Index.RespectGitignore
	}
	if o.Scanner.MaxFilesWalked != nil {
		cfg.Scanner.MaxFilesWalked = *o.Scanner.MaxFilesWalked
	}
	if o.Scanner.MaxMatches != nil {
		cfg.Scanner.MaxMatches = *o.Scanner.MaxMatches
	}
	if o.Scanner.IncludeHidden != nil {
		cfg.Scanner.IncludeHidden = *o.Scanner.IncludeHidden
	}
	if o.Scanner.CaseInsensitive != nil {
		cfg.Scanner.CaseInsensitive = *o.Scanner.CaseInsensitive
	}
	if o.Search.FTSWeight != nil {
		cfg.Search.FTSWeight = *o.Search.FTSWeight
	}
	if o.Search.GrepWeight != nil {
		cfg.Search.GrepWeight = *o.Search.GrepWeight
	}
	if o.Search.TrigramWeight != nil {
		cfg.Search.TrigramWeight = *o.Search.TrigramWeight
	}
	if o.Search.DefaultLimit != nil {
		cfg.Search.DefaultLimit = *o.Search.DefaultLimit
	}
	if len(o.Include) > 0 {
		cfg.Include = o.Include
	}
	if len(o.Exclude) > 0 {
		cfg.Exclude = o.Exclude
	}
}

// loadKDL parses a .lci.kdl document and overlays matching nodes onto cfg.
// Unrecognized nodes are ignored, matching the teacher's tolerant parser.
func loadKDL(data []byte, cfg *Config) error {
	doc, err := kdl.Parse(strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("failed to parse KDL config: %w", err)
	}
	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "index":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_file_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.MaxFileSize = int64(v)
					}
				case "follow_symlinks":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.FollowSymlinks = b
					}
				case "respect_gitignore":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.RespectGitignore = b
					}
				case "batch_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.BatchSize = v
					}
				}
			}
		case "scanner":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_files_walked":
					if v, ok := firstIntArg(cn); ok {
						cfg.Scanner.MaxFilesWalked = v
					}
				case "max_matches":
					if v, ok := firstIntArg(cn); ok {
						cfg.Scanner.MaxMatches = v
					}
				case "include_hidden":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Scanner.IncludeHidden = b
					}
				case "case_insensitive":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Scanner.CaseInsensitive = b
					}
				}
			}
		case "search":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "fts_weight":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Search.FTSWeight = v
					}
				case "grep_weight":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Search.GrepWeight = v
					}
				case "trigram_weight":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Search.TrigramWeight = v
					}
				case "default_limit":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.DefaultLimit = v
					}
				}
			}
		case "include":
			cfg.Include = append(cfg.Include, collectStringArgs(n)...)
		case "exclude":
			cfg.Exclude = append(cfg.Exclude, collectStringArgs(n)...)
		}
	}
	return nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	b, ok := n.Arguments[0].Value.(bool)
	return b, ok
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	s, ok := n.Arguments[0].Value.(string)
	return s, ok
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if name := nodeName(child); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}
