// Package server owns the session lifecycle of the index: initialize,
// document events, shutdown. It ties the workspace index, the persistent
// cache and the file watcher together so the transport layer above it
// only ever calls lifecycle hooks.
package server

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/wardlang/wci/internal/cache"
	"github.com/wardlang/wci/internal/config"
	"github.com/wardlang/wci/internal/debug"
	"github.com/wardlang/wci/internal/indexing"
	"github.com/wardlang/wci/pkg/pathutil"
)

// Session is one initialized workspace: a live index plus the background
// machinery keeping it current. All methods are safe for concurrent use.
type Session struct {
	cfg     *config.Config
	idx     *indexing.WorkspaceIndex
	scanner *indexing.Scanner
	env     cache.Env

	mu          sync.Mutex
	initialized bool
	startTime   time.Time
	loadOutcome cache.LoadOutcome
	watcher     *indexing.FileWatcher

	loadCancel context.CancelFunc
	loadDone   chan struct{}
}

// NewSession creates an uninitialized session.
func NewSession(cfg *config.Config) *Session {
	return &Session{
		cfg:     cfg,
		idx:     indexing.NewWorkspaceIndex(),
		scanner: indexing.NewScanner(cfg),
	}
}

// Index exposes the live workspace index for query handlers.
func (s *Session) Index() *indexing.WorkspaceIndex {
	return s.idx
}

// Initialize warms the session for a workspace root. The cache load and
// the catch-up scan run in the background: queries work immediately
// against whatever is indexed so far, and initialization never blocks on
// disk. Safe to call once; later calls are no-ops.
func (s *Session) Initialize(root string) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = true
	s.startTime = time.Now()
	s.env = cache.NewEnv(root, s.cfg)

	ctx, cancel := context.WithCancel(context.Background())
	s.loadCancel = cancel
	s.loadDone = make(chan struct{})
	s.mu.Unlock()

	go s.warm(ctx, root)

	if s.cfg.Index.WatchMode {
		watcher, err := indexing.NewFileWatcher(s.cfg)
		if err != nil {
			return err
		}
		watcher.SetCallbacks(s.onFileChanged, s.onFileChanged, s.onFileRemoved)
		if err := watcher.Start(root); err != nil {
			return err
		}
		s.mu.Lock()
		s.watcher = watcher
		s.mu.Unlock()
	}
	return nil
}

// WaitReady blocks until the background warm-up finished or the context
// expires. Queries are valid before readiness; they just see fewer files.
func (s *Session) WaitReady(ctx context.Context) error {
	s.mu.Lock()
	done := s.loadDone
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// warm restores the persisted cache and then indexes whatever the cache
// did not cover.
func (s *Session) warm(ctx context.Context, root string) {
	defer close(s.loadDone)

	snaps, outcome := cache.Load(ctx, s.env)
	s.mu.Lock()
	s.loadOutcome = outcome
	s.mu.Unlock()
	debug.Printf("cache load for %s: %s (%d entries)", root, outcome, len(snaps))

	if outcome == cache.LoadCancelled {
		return
	}
	if len(snaps) > 0 {
		s.idx.BulkLoad(snaps)
	}

	files, err := s.scanner.Scan(root)
	if err != nil {
		log.Printf("wci: workspace scan failed for %s: %v", root, err)
		return
	}
	for _, path := range files {
		if ctx.Err() != nil {
			return
		}
		uri := pathutil.ToURI(path)
		if _, ok := s.idx.Snapshot(uri); ok {
			continue
		}
		s.indexFile(path)
	}
	debug.Printf("workspace warm for %s complete: %d files live", root, s.idx.Len())
}

// indexFile reads and indexes one on-disk file.
func (s *Session) indexFile(path string) {
	content, err := s.scanner.ReadForIndex(path)
	if err != nil {
		debug.Printf("skipping %s: %v", path, err)
		return
	}
	s.idx.OpenOrUpdate(pathutil.ToURI(path), string(content))
}

// onFileChanged handles watcher create and write events.
func (s *Session) onFileChanged(path string) {
	s.indexFile(path)
}

// onFileRemoved handles watcher remove events.
func (s *Session) onFileRemoved(path string) {
	s.idx.Close(pathutil.ToURI(path))
}

// DocumentOpened indexes an editor buffer. The buffer text wins over
// whatever the disk or cache said.
func (s *Session) DocumentOpened(uri, text string) {
	s.idx.OpenOrUpdate(uri, text)
}

// DocumentChanged re-indexes an edited buffer.
func (s *Session) DocumentChanged(uri, text string) {
	s.idx.OpenOrUpdate(uri, text)
}

// DocumentClosed reverts a document to its on-disk state, or drops it
// entirely when no backing file exists.
func (s *Session) DocumentClosed(uri string) {
	path := pathutil.ToPath(uri)
	if path == uri {
		// Virtual document; nothing on disk to fall back to.
		s.idx.Close(uri)
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		s.idx.Close(uri)
		return
	}
	s.idx.OpenOrUpdate(uri, string(content))
}

// Shutdown tears the session down: the background warm-up is cancelled
// and awaited, the watcher stopped, and the index persisted best effort.
// A failed save is logged, never returned, so shutdown always completes.
func (s *Session) Shutdown(ctx context.Context) {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return
	}
	cancel := s.loadCancel
	done := s.loadDone
	watcher := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			log.Printf("wci: watcher stop failed: %v", err)
		}
	}
	if err := cache.Save(ctx, s.env, s.idx); err != nil {
		log.Printf("wci: cache save failed: %v", err)
	}
}

// Status describes the live session for diagnostics.
type Status struct {
	Root        string
	Uptime      time.Duration
	Files       int
	Fragments   int
	CacheLoad   string
	Watching    bool
	CacheDir    string
	CacheOnDisk bool
}

// Status reports current session state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Root:      s.env.Root,
		Files:     s.idx.Len(),
		Fragments: s.idx.Store().Len(),
		CacheLoad: s.loadOutcome.String(),
		Watching:  s.watcher != nil,
	}
	if !s.initialized {
		return st
	}
	st.Uptime = time.Since(s.startTime)
	if dir, err := s.env.Dir(); err == nil {
		st.CacheDir = dir
		if _, statErr := os.Stat(dir); statErr == nil {
			st.CacheOnDisk = true
		}
	}
	return st
}
