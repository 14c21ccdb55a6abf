package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/lci/internal/access"
	lciErrors "github.com/standardbeagle/lci/internal/errors"
	"github.com/standardbeagle/lci/internal/search"
	"github.com/standardbeagle/lci/internal/types"
	"github.com/standardbeagle/lci/internal/workspace"
	"github.com/standardbeagle/lci/pkg/pathutil"
)

// Dispatcher is the MCP-facing tool surface over a workspace.Manager. It
// owns the blocking-work pool every tool body runs on; the transport loop
// itself (stdio/http framing) is an external collaborator per spec.md §1.
type Dispatcher struct {
	manager     *workspace.Manager
	pool        *pool
	responseCap int
}

// New builds a Dispatcher. poolSize bounds concurrent blocking tool
// bodies; responseCap bounds serialized tool output (0 means the
// config.DefaultResponseCap of 512 KiB).
func New(manager *workspace.Manager, poolSize, responseCap int) *Dispatcher {
	return &Dispatcher{manager: manager, pool: newPool(poolSize), responseCap: responseCap}
}

// Register adds all twelve tools of spec.md §6 to server.
func (d *Dispatcher) Register(server *mcp.Server) {
	server.AddTool(&mcp.Tool{
		Name:        "open-workspace",
		Description: "Open or replace the active workspace at an absolute root path.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path": {Type: "string", Description: "Absolute path to the workspace root"},
			},
			Required: []string{"path"},
		},
	}, d.handleOpenWorkspace)

	server.AddTool(&mcp.Tool{
		Name:        "search",
		Description: "Hybrid trigram/full-text/regex search over the active workspace.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {Type: "string", Description: "Search query"},
				"limit": {Type: "integer", Description: "Maximum results"},
				"mode":  {Type: "string", Description: "combined, fts, or grep"},
			},
			Required: []string{"query"},
		},
	}, d.handleSearch)

	server.AddTool(&mcp.Tool{
		Name:        "relevant",
		Description: "Rank files by relevance to a topic, with a reason derived from contributing signals.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"topic": {Type: "string", Description: "Topic or concept to rank files against"},
				"limit": {Type: "integer", Description: "Maximum results"},
			},
			Required: []string{"topic"},
		},
	}, d.handleRelevant)

	server.AddTool(&mcp.Tool{
		Name:        "get",
		Description: "Retrieve bounded file content, optionally a line range.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path":       {Type: "string", Description: "Relative path within the workspace"},
				"start_line": {Type: "integer", Description: "1-based start line (optional)"},
				"end_line":   {Type: "integer", Description: "1-based end line, inclusive (optional)"},
			},
			Required: []string{"path"},
		},
	}, d.handleGet)

	server.AddTool(&mcp.Tool{
		Name:        "outline",
		Description: "Extract a shallow symbol outline from a file via line-prefix heuristics.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path": {Type: "string", Description: "Relative path within the workspace"},
			},
			Required: []string{"path"},
		},
	}, d.handleOutline)

	server.AddTool(&mcp.Tool{
		Name:        "toc",
		Description: "Count files and directories in a subtree down to a depth; entries are not listed.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path":  {Type: "string", Description: "Relative directory path within the workspace"},
				"depth": {Type: "integer", Description: "Maximum depth to descend"},
			},
		},
	}, d.handleTOC)

	server.AddTool(&mcp.Tool{
		Name:        "context",
		Description: "Retrieve content centered on a line with a marker line.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path":   {Type: "string", Description: "Relative path within the workspace"},
				"line":   {Type: "integer", Description: "1-based center line"},
				"radius": {Type: "integer", Description: "Lines of context on each side"},
			},
			Required: []string{"path", "line"},
		},
	}, d.handleContext)

	server.AddTool(&mcp.Tool{
		Name:        "refs",
		Description: "Find exact `\\b<symbol>\\b` occurrences, classified as definition/import/type_usage/usage.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"symbol": {Type: "string", Description: "Symbol name"},
				"limit":  {Type: "integer", Description: "Maximum results"},
			},
			Required: []string{"symbol"},
		},
	}, d.handleRefs)

	server.AddTool(&mcp.Tool{
		Name:        "related",
		Description: "Find files sharing identifier tokens with a given file.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path":  {Type: "string", Description: "Relative path within the workspace"},
				"limit": {Type: "integer", Description: "Maximum results"},
			},
			Required: []string{"path"},
		},
	}, d.handleRelated)

	server.AddTool(&mcp.Tool{
		Name:        "index",
		Description: "Run an incremental (or forced full) indexing cycle over the active workspace.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"force": {Type: "boolean", Description: "Rebuild every file regardless of stored fingerprint"},
			},
		},
	}, d.handleIndex)

	server.AddTool(&mcp.Tool{
		Name:        "diff",
		Description: "Unified diff between two files in the workspace.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path_a":  {Type: "string", Description: "First relative path"},
				"path_b":  {Type: "string", Description: "Second relative path"},
				"context": {Type: "integer", Description: "Context lines around each hunk"},
			},
			Required: []string{"path_a", "path_b"},
		},
	}, d.handleDiff)

	server.AddTool(&mcp.Tool{
		Name:        "stats",
		Description: "Report indexed file count, trigram count, and optionally a per-extension histogram.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"detailed": {Type: "boolean", Description: "Include per-extension histogram and size estimate"},
			},
		},
	}, d.handleStats)
}

// relPath converts store/scanner paths, which are absolute (rooted at
// ws.Root), to workspace-relative form for tool output. Grounded on the
// teacher's pkg/pathutil, which performs the same absolute-to-relative
// conversion at its CLI display layer just before results are shown; here
// the dispatcher's JSON envelope is that display layer.
func relPath(ws *workspace.Workspace, absPath string) string {
	return pathutil.ToRelative(absPath, ws.Root)
}

// activeWorkspace returns the active workspace or a client-fixable error
// naming the missing-workspace condition (every tool but open-workspace
// depends on one being active, per spec.md §4.7).
func (d *Dispatcher) activeWorkspace() (*workspace.Workspace, error) {
	ws := d.manager.Active()
	if ws == nil {
		return nil, lciErrors.NewIndexError(lciErrors.CodeFileNotFound, "", fmt.Errorf("no workspace is open; call open-workspace first"))
	}
	return ws, nil
}

// decodeParams unmarshals a tool call's raw JSON arguments into P.
func decodeParams[P any](req *mcp.CallToolRequest) (P, error) {
	var p P
	if len(req.Params.Arguments) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return p, fmt.Errorf("invalid parameters: %w", err)
	}
	return p, nil
}

// jsonResult marshals data, enforces the response cap, and wraps it in the
// transport's success envelope.
func (d *Dispatcher) jsonResult(data any) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	payload = capResponse(payload, d.responseCap)
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}}}, nil
}

// errorResult wraps err in the typed invalid-params/internal-error
// envelope (internal/errors.Wrap) and reports it as a tool-level error per
// the MCP SDK's isError convention, not a protocol-level error.
func (d *Dispatcher) errorResult(err error) (*mcp.CallToolResult, error) {
	envelope := lciErrors.Wrap(err)
	payload, marshalErr := json.Marshal(envelope)
	if marshalErr != nil {
		return nil, marshalErr
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
		IsError: true,
	}, nil
}

// --- open-workspace ---

type openWorkspaceParams struct {
	Path string `json:"path"`
}

func (d *Dispatcher) handleOpenWorkspace(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params, err := decodeParams[openWorkspaceParams](req)
	if err != nil {
		return d.errorResult(err)
	}

	ws, err := submit(ctx, d.pool, func() (*workspace.Workspace, error) {
		return d.manager.OpenWorkspace(ctx, params.Path)
	})
	if err != nil {
		return d.errorResult(err)
	}

	count, err := ws.Store.FileCount(ctx)
	if err != nil {
		return d.errorResult(err)
	}

	return d.jsonResult(map[string]any{
		"loaded_root": ws.Root,
		"cache_db":    ws.CacheDB,
		"file_count":  count,
	})
}

// --- search ---

type searchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
	Mode  string `json:"mode"`
}

func (d *Dispatcher) handleSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params, err := decodeParams[searchParams](req)
	if err != nil {
		return d.errorResult(err)
	}
	ws, err := d.activeWorkspace()
	if err != nil {
		return d.errorResult(err)
	}
	mode := types.SearchMode(strings.ToLower(params.Mode))
	if mode != types.ModeFTS {
		// The grep signal engages the scanner for combined and grep modes;
		// reject pathological patterns before it runs (spec.md §4.8).
		if err := access.CheckPattern(params.Query); err != nil {
			return d.errorResult(err)
		}
	}

	type row struct {
		Path    string   `json:"path"`
		Score   float64  `json:"score"`
		Sources []string `json:"sources"`
	}

	results, err := submit(ctx, d.pool, func() ([]row, error) {
		var hits []search.Result
		var err error
		switch mode {
		case types.ModeFTS:
			hits, err = ws.Search.SearchFTS(ctx, params.Query, params.Limit)
		case types.ModeGrep:
			hits, err = ws.Search.SearchGrep(ctx, params.Query, params.Limit)
		default:
			hits, err = ws.Search.Search(ctx, params.Query, params.Limit)
		}
		if err != nil {
			return nil, err
		}

		rows := make([]row, 0, len(hits))
		for _, h := range hits {
			rows = append(rows, row{Path: relPath(ws, h.Path), Score: h.Score.Float64(), Sources: h.Sources.List()})
		}
		return rows, nil
	})
	if err != nil {
		return d.errorResult(err)
	}
	return d.jsonResult(map[string]any{"results": results})
}

// --- relevant ---

func (d *Dispatcher) handleRelevant(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params, err := decodeParams[struct {
		Topic string `json:"topic"`
		Limit int    `json:"limit"`
	}](req)
	if err != nil {
		return d.errorResult(err)
	}
	ws, err := d.activeWorkspace()
	if err != nil {
		return d.errorResult(err)
	}

	type row struct {
		Path   string `json:"path"`
		Score  float64 `json:"score"`
		Reason string `json:"reason"`
	}

	rows, err := submit(ctx, d.pool, func() ([]row, error) {
		hits, err := ws.Search.Search(ctx, params.Topic, params.Limit)
		if err != nil {
			return nil, err
		}
		out := make([]row, 0, len(hits))
		for _, h := range hits {
			out = append(out, row{
				Path:   relPath(ws, h.Path),
				Score:  h.Score.Float64(),
				Reason: reasonFromSources(h.Sources),
			})
		}
		return out, nil
	})
	if err != nil {
		return d.errorResult(err)
	}
	return d.jsonResult(map[string]any{"results": rows})
}

func reasonFromSources(s types.Sources) string {
	parts := s.List()
	if len(parts) == 0 {
		return "no contributing signal"
	}
	return "matched via " + strings.Join(parts, "+")
}

// --- get ---

func (d *Dispatcher) handleGet(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params, err := decodeParams[struct {
		Path      string `json:"path"`
		StartLine int    `json:"start_line"`
		EndLine   int    `json:"end_line"`
	}](req)
	if err != nil {
		return d.errorResult(err)
	}
	ws, err := d.activeWorkspace()
	if err != nil {
		return d.errorResult(err)
	}

	result, err := submit(ctx, d.pool, func() (map[string]any, error) {
		absPath, err := ws.Guard.CheckPath(params.Path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, lciErrors.NewStorageError(lciErrors.CodeFileNotFound, params.Path, err)
		}
		lines := strings.Split(string(data), "\n")
		total := len(lines)

		start, end := params.StartLine, params.EndLine
		if start <= 0 {
			start = 1
		}
		if end <= 0 || end > total {
			end = total
		}
		if start > end {
			start = end
		}
		content := strings.Join(lines[start-1:end], "\n")

		return map[string]any{
			"path":        params.Path,
			"total_lines": total,
			"content":     wrapContent(params.Path, content),
		}, nil
	})
	if err != nil {
		return d.errorResult(err)
	}
	return d.jsonResult(result)
}

// --- outline ---

var outlinePattern = regexp.MustCompile(`^\s*(func|type|class|def|struct|interface)\b`)

func (d *Dispatcher) handleOutline(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params, err := decodeParams[struct {
		Path string `json:"path"`
	}](req)
	if err != nil {
		return d.errorResult(err)
	}
	ws, err := d.activeWorkspace()
	if err != nil {
		return d.errorResult(err)
	}

	type entry struct {
		Name   string `json:"name"`
		Kind   string `json:"kind"`
		Line   int    `json:"line"`
		Indent int    `json:"indent"`
	}

	entries, err := submit(ctx, d.pool, func() ([]entry, error) {
		absPath, err := ws.Guard.CheckPath(params.Path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, lciErrors.NewStorageError(lciErrors.CodeFileNotFound, params.Path, err)
		}

		var out []entry
		for i, line := range strings.Split(string(data), "\n") {
			m := outlinePattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			indent := len(line) - len(strings.TrimLeft(line, " \t"))
			out = append(out, entry{
				Name:   strings.TrimSpace(line),
				Kind:   m[1],
				Line:   i + 1,
				Indent: indent,
			})
		}
		return out, nil
	})
	if err != nil {
		return d.errorResult(err)
	}
	return d.jsonResult(map[string]any{"outline": entries})
}

// --- toc ---

func (d *Dispatcher) handleTOC(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params, err := decodeParams[struct {
		Path  string `json:"path"`
		Depth int    `json:"depth"`
	}](req)
	if err != nil {
		return d.errorResult(err)
	}
	ws, err := d.activeWorkspace()
	if err != nil {
		return d.errorResult(err)
	}
	depth := params.Depth
	if depth <= 0 {
		depth = 3
	}

	result, err := submit(ctx, d.pool, func() (map[string]any, error) {
		absRoot, err := ws.Guard.CheckPath(params.Path)
		if err != nil {
			return nil, err
		}
		fileCount, dirCount := 0, 0
		err = filepath.WalkDir(absRoot, func(p string, dirEntry os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			rel, _ := filepath.Rel(absRoot, p)
			if rel == "." {
				return nil
			}
			if strings.Count(rel, string(filepath.Separator)) >= depth {
				if dirEntry.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if dirEntry.IsDir() {
				dirCount++
			} else {
				fileCount++
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"path": params.Path, "file_count": fileCount, "dir_count": dirCount}, nil
	})
	if err != nil {
		return d.errorResult(err)
	}
	return d.jsonResult(result)
}

// --- context ---

func (d *Dispatcher) handleContext(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params, err := decodeParams[struct {
		Path   string `json:"path"`
		Line   int    `json:"line"`
		Radius int    `json:"radius"`
	}](req)
	if err != nil {
		return d.errorResult(err)
	}
	ws, err := d.activeWorkspace()
	if err != nil {
		return d.errorResult(err)
	}
	radius := params.Radius
	if radius <= 0 {
		radius = 5
	}

	result, err := submit(ctx, d.pool, func() (map[string]any, error) {
		absPath, err := ws.Guard.CheckPath(params.Path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, lciErrors.NewStorageError(lciErrors.CodeFileNotFound, params.Path, err)
		}
		lines := strings.Split(string(data), "\n")
		center := params.Line
		start := center - radius
		if start < 1 {
			start = 1
		}
		end := center + radius
		if end > len(lines) {
			end = len(lines)
		}

		var b strings.Builder
		for i := start; i <= end; i++ {
			marker := "  "
			if i == center {
				marker = "> "
			}
			fmt.Fprintf(&b, "%s%d: %s\n", marker, i, lines[i-1])
		}

		return map[string]any{
			"path":        params.Path,
			"center_line": center,
			"content":     wrapContent(params.Path, strings.TrimRight(b.String(), "\n")),
		}, nil
	})
	if err != nil {
		return d.errorResult(err)
	}
	return d.jsonResult(result)
}

// --- refs ---

func classifyRefLine(line string) string {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, "import"):
		return "import"
	case strings.HasPrefix(trimmed, "func ") || strings.HasPrefix(trimmed, "def ") || strings.HasPrefix(trimmed, "class "):
		return "definition"
	case strings.HasPrefix(trimmed, "type ") || strings.HasPrefix(trimmed, "struct ") || strings.HasPrefix(trimmed, "interface "):
		return "type_usage"
	default:
		return "usage"
	}
}

func (d *Dispatcher) handleRefs(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params, err := decodeParams[struct {
		Symbol string `json:"symbol"`
		Limit  int    `json:"limit"`
	}](req)
	if err != nil {
		return d.errorResult(err)
	}
	ws, err := d.activeWorkspace()
	if err != nil {
		return d.errorResult(err)
	}
	if params.Symbol == "" {
		return d.errorResult(lciErrors.NewSearchError(lciErrors.CodeInvalidPattern, params.Symbol, fmt.Errorf("symbol must not be empty")))
	}

	type row struct {
		Path  string `json:"path"`
		Line  int    `json:"line"`
		Kind  string `json:"kind"`
		Text  string `json:"text"`
	}

	rows, err := submit(ctx, d.pool, func() ([]row, error) {
		pattern := `\b` + regexp.QuoteMeta(params.Symbol) + `\b`
		matches, err := ws.Scanner.SearchParallel(ctx, pattern, params.Limit)
		if err != nil {
			return nil, err
		}
		out := make([]row, 0, len(matches))
		for _, m := range matches {
			out = append(out, row{
				Path: relPath(ws, m.Path),
				Line: m.LineNumber,
				Kind: classifyRefLine(m.LineContent),
				Text: strings.TrimSpace(m.LineContent),
			})
		}
		return out, nil
	})
	if err != nil {
		return d.errorResult(err)
	}
	return d.jsonResult(map[string]any{"refs": rows})
}

// --- related ---

var identifierPattern = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]{3,}\b`)

func (d *Dispatcher) handleRelated(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params, err := decodeParams[struct {
		Path  string `json:"path"`
		Limit int    `json:"limit"`
	}](req)
	if err != nil {
		return d.errorResult(err)
	}
	ws, err := d.activeWorkspace()
	if err != nil {
		return d.errorResult(err)
	}

	type row struct {
		Path  string  `json:"path"`
		Score float64 `json:"score"`
	}

	rows, err := submit(ctx, d.pool, func() ([]row, error) {
		absPath, err := ws.Guard.CheckPath(params.Path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, lciErrors.NewStorageError(lciErrors.CodeFileNotFound, params.Path, err)
		}

		tokens := topIdentifiers(string(data), 8)
		acc := make(map[string]float64)
		for _, tok := range tokens {
			hits, err := ws.Search.SearchFTS(ctx, tok, 20)
			if err != nil {
				continue
			}
			for _, h := range hits {
				rel := relPath(ws, h.Path)
				if rel == params.Path {
					continue
				}
				acc[rel] += h.Score.Float64()
			}
		}

		out := make([]row, 0, len(acc))
		for p, s := range acc {
			out = append(out, row{Path: p, Score: s})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
		limit := params.Limit
		if limit <= 0 {
			limit = 20
		}
		if len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	})
	if err != nil {
		return d.errorResult(err)
	}
	return d.jsonResult(map[string]any{"related": rows})
}

// topIdentifiers returns the n most frequent identifier-like tokens in
// content, longest-first on tie so short, common words lose out.
func topIdentifiers(content string, n int) []string {
	counts := make(map[string]int)
	for _, tok := range identifierPattern.FindAllString(content, -1) {
		counts[tok]++
	}
	toks := make([]string, 0, len(counts))
	for t := range counts {
		toks = append(toks, t)
	}
	sort.Slice(toks, func(i, j int) bool {
		if counts[toks[i]] != counts[toks[j]] {
			return counts[toks[i]] > counts[toks[j]]
		}
		return len(toks[i]) > len(toks[j])
	})
	if len(toks) > n {
		toks = toks[:n]
	}
	return toks
}

// --- index ---

func (d *Dispatcher) handleIndex(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params, err := decodeParams[struct {
		Force bool `json:"force"`
	}](req)
	if err != nil {
		return d.errorResult(err)
	}
	ws, err := d.activeWorkspace()
	if err != nil {
		return d.errorResult(err)
	}

	progress, err := submit(ctx, d.pool, func() (any, error) {
		return ws.Indexer.Index(ctx, params.Force, nil)
	})
	if err != nil {
		return d.errorResult(err)
	}
	return d.jsonResult(progress)
}

// --- diff ---

func (d *Dispatcher) handleDiff(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params, err := decodeParams[struct {
		PathA   string `json:"path_a"`
		PathB   string `json:"path_b"`
		Context int    `json:"context"`
	}](req)
	if err != nil {
		return d.errorResult(err)
	}
	ws, err := d.activeWorkspace()
	if err != nil {
		return d.errorResult(err)
	}

	result, err := submit(ctx, d.pool, func() (map[string]any, error) {
		absA, err := ws.Guard.CheckPath(params.PathA)
		if err != nil {
			return nil, err
		}
		absB, err := ws.Guard.CheckPath(params.PathB)
		if err != nil {
			return nil, err
		}
		a, err := os.ReadFile(absA)
		if err != nil {
			return nil, lciErrors.NewStorageError(lciErrors.CodeFileNotFound, params.PathA, err)
		}
		b, err := os.ReadFile(absB)
		if err != nil {
			return nil, lciErrors.NewStorageError(lciErrors.CodeFileNotFound, params.PathB, err)
		}

		ctxLines := params.Context
		if ctxLines <= 0 {
			ctxLines = 3
		}
		hunks, added, deleted, changed := unifiedDiff(strings.Split(string(a), "\n"), strings.Split(string(b), "\n"), ctxLines)

		return map[string]any{
			"hunks":   hunks,
			"added":   added,
			"deleted": deleted,
			"changed": changed,
		}, nil
	})
	if err != nil {
		return d.errorResult(err)
	}
	return d.jsonResult(result)
}

// --- stats ---

func (d *Dispatcher) handleStats(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params, err := decodeParams[struct {
		Detailed bool `json:"detailed"`
	}](req)
	if err != nil {
		return d.errorResult(err)
	}
	ws, err := d.activeWorkspace()
	if err != nil {
		return d.errorResult(err)
	}

	result, err := submit(ctx, d.pool, func() (map[string]any, error) {
		fileCount, trigramCount, err := ws.Indexer.Stats(ctx)
		if err != nil {
			return nil, err
		}
		out := map[string]any{
			"file_count":    fileCount,
			"trigram_count": trigramCount,
		}
		if params.Detailed {
			histogram, estimatedSize, err := extensionHistogram(ws.Root)
			if err == nil {
				out["extension_histogram"] = histogram
				out["estimated_size_bytes"] = estimatedSize
			}
		}
		return out, nil
	})
	if err != nil {
		return d.errorResult(err)
	}
	return d.jsonResult(result)
}

func extensionHistogram(root string) (map[string]int, int64, error) {
	histogram := make(map[string]int)
	var total int64
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(p), "."))
		if ext == "" {
			ext = "(none)"
		}
		histogram[ext]++
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return histogram, total, err
}
