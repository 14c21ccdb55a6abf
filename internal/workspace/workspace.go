// Package workspace owns the (root, storage, trigram index) triple that
// spec.md §3 calls a workspace, plus the service handles built on top of
// it (indexer, full-text adapter, scanner, hybrid search). Grounded on the
// teacher's internal/indexing coordinator for lifecycle shape and on
// original_source/src/workspace.rs for the open/replace contract.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/lci/internal/access"
	"github.com/standardbeagle/lci/internal/config"
	lciErrors "github.com/standardbeagle/lci/internal/errors"
	"github.com/standardbeagle/lci/internal/fulltext"
	"github.com/standardbeagle/lci/internal/indexer"
	"github.com/standardbeagle/lci/internal/scanner"
	"github.com/standardbeagle/lci/internal/search"
	"github.com/standardbeagle/lci/internal/storage"
	"github.com/standardbeagle/lci/internal/trigram"
)

// Workspace is one open (root, storage engine, trigram index) triple and
// the service handles built over it. At most one Workspace is active in
// a Manager at a time (spec.md §3).
type Workspace struct {
	Root     string
	CacheDB  string
	Config   *config.Config
	Store    *storage.Store
	Trigram  *trigram.Index
	Guard    *access.Guard
	Indexer  *indexer.Indexer
	FullText *fulltext.Service
	Scanner  *scanner.Service
	Search   *search.Service

	watcher *fsnotify.Watcher
}

// Open validates root, opens (or creates) its cache database, loads any
// persisted trigram postings, and wires every service handle over the
// shared store/trigram/guard triple. It does not install itself as the
// active workspace in any Manager — callers do that with Manager.OpenWorkspace.
func Open(ctx context.Context, root string) (*Workspace, error) {
	if !filepath.IsAbs(root) {
		return nil, lciErrors.NewAccessError(lciErrors.CodeAbsolutePath, root)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, lciErrors.NewIndexError(lciErrors.CodeFileIndexError, root, fmt.Errorf("workspace root is not a directory"))
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	cachePath, err := storage.CachePath(root, cfg.Storage.CacheDir)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cachePath, cfg.Storage)
	if err != nil {
		return nil, err
	}

	trigramIdx := trigram.New()
	entries, err := store.LoadTrigrams(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	trigramIdx.LoadEntries(entries)

	guard := access.New(root)

	var ignore *config.GitignoreMatcher
	if cfg.Index.RespectGitignore {
		ignore = config.NewGitignoreMatcher()
		if err := ignore.LoadGitignore(root); err != nil {
			store.Close()
			return nil, err
		}
	}

	ix := indexer.New(store, trigramIdx, guard, root, cfg.Index, ignore)
	ftsSvc := fulltext.New(store, cfg.Search)
	scanSvc := scanner.New(root, cfg.Scanner, ignore)
	searchSvc := search.New(store, ftsSvc, scanSvc, trigramIdx, cfg.Search)

	return &Workspace{
		Root:     root,
		CacheDB:  cachePath,
		Config:   cfg,
		Store:    store,
		Trigram:  trigramIdx,
		Guard:    guard,
		Indexer:  ix,
		FullText: ftsSvc,
		Scanner:  scanSvc,
		Search:   searchSvc,
	}, nil
}

// Watch starts an fsnotify watch over the workspace root, invoking onEvent
// for every create/write/remove/rename event. This is an optional hook: the
// watch-driven re-index loop itself (debouncing, batching touched paths
// into an index cycle) lives in the excluded CLI layer (spec.md §1); the
// workspace only supplies the raw event stream.
func (w *Workspace) Watch(onEvent func(fsnotify.Event)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.Root); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if onEvent != nil {
					onEvent(event)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

// Close releases the workspace's storage pool and, if active, its
// filesystem watch. It does not touch any Manager that may still
// reference this Workspace — callers must not Close a Workspace that is
// still the active one in a Manager.
func (w *Workspace) Close() error {
	if w.watcher != nil {
		w.watcher.Close()
	}
	return w.Store.Close()
}

// Manager holds the single active Workspace and supports atomic
// replacement (spec.md §3's "held as the single active workspace until
// replaced or process exit"). The zero value has no active workspace.
type Manager struct {
	active atomic.Pointer[Workspace]
}

// Active returns the currently active workspace, or nil if none is open.
func (m *Manager) Active() *Workspace {
	return m.active.Load()
}

// OpenWorkspace opens root as a new Workspace and atomically swaps it in
// as the active one, closing whatever workspace was previously active.
func (m *Manager) OpenWorkspace(ctx context.Context, root string) (*Workspace, error) {
	ws, err := Open(ctx, root)
	if err != nil {
		return nil, err
	}
	old := m.active.Swap(ws)
	if old != nil {
		old.Close()
	}
	return ws, nil
}
