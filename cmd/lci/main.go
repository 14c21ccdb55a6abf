// Command lci runs the MCP server over stdio. Flag parsing, the
// watch-driven re-index loop, and any interactive CLI surface are
// deliberately out of scope (spec.md §1) — this binary only wires the
// workspace manager, the dispatcher's tool surface, and the transport
// together.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/lci/internal/dispatcher"
	"github.com/standardbeagle/lci/internal/workspace"
)

// version is overwritten at build time via -ldflags.
var version = "dev"

func main() {
	logger := newFileLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var manager workspace.Manager
	if root, err := os.Getwd(); err == nil {
		if absRoot, err := filepath.Abs(root); err == nil {
			if _, err := manager.OpenWorkspace(ctx, absRoot); err != nil {
				logger.Printf("initial workspace open at %s failed, waiting for open-workspace: %v", absRoot, err)
			}
		}
	}

	d := dispatcher.New(&manager, 0, 0)
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "lci-mcp-server",
		Version: version,
	}, nil)
	d.Register(server)

	logger.Printf("starting MCP server with stdio transport")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		logger.Printf("server exited with error: %v", err)
		os.Exit(1)
	}
}

// newFileLogger writes to a temp-dir log file rather than stdout/stderr,
// which the stdio transport reserves for protocol framing.
func newFileLogger() *log.Logger {
	logDir := filepath.Join(os.TempDir(), "lci-mcp-logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return log.New(os.Stderr, "lci: ", log.LstdFlags)
	}
	f, err := os.OpenFile(filepath.Join(logDir, "lci.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return log.New(os.Stderr, "lci: ", log.LstdFlags)
	}
	return log.New(f, "lci: ", log.LstdFlags)
}
