package indexing

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/wardlang/wci/internal/config"
	"github.com/wardlang/wci/internal/debug"
)

// FileWatcher monitors the workspace for contract file changes and feeds
// debounced batches of events to its callbacks.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	config    *config.Config
	debouncer *eventDebouncer
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	onFileChanged func(path string)
	onFileCreated func(path string)
	onFileRemoved func(path string)

	eventsProcessed int64
	errorCount      int64
	lastEventTime   time.Time
	statsMu         sync.RWMutex
}

// FileEventType represents the type of file system event.
type FileEventType int

const (
	FileEventCreate FileEventType = iota
	FileEventWrite
	FileEventRemove
	FileEventRename
)

// NewFileWatcher creates a watcher for the configured workspace. Call
// Start to begin receiving events and Stop to tear down.
func NewFileWatcher(cfg *config.Config) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	fw := &FileWatcher{
		watcher:   watcher,
		config:    cfg,
		debouncer: newEventDebouncer(time.Duration(cfg.Index.WatchDebounceMs) * time.Millisecond),
		ctx:       ctx,
		cancel:    cancel,
	}
	fw.debouncer.setCallbacks(fw)
	return fw, nil
}

// SetCallbacks sets the handlers invoked for debounced file events.
func (fw *FileWatcher) SetCallbacks(
	onFileChanged func(path string),
	onFileCreated func(path string),
	onFileRemoved func(path string),
) {
	fw.onFileChanged = onFileChanged
	fw.onFileCreated = onFileCreated
	fw.onFileRemoved = onFileRemoved
}

// Start begins watching the workspace root.
func (fw *FileWatcher) Start(root string) error {
	if !fw.config.Index.WatchMode {
		log.Printf("File watching disabled in configuration")
		return nil
	}

	debug.Printf("Starting file watcher for directory: %s", root)

	if err := fw.addWatches(root); err != nil {
		return fmt.Errorf("failed to add watches starting from %s: %w", root, err)
	}

	fw.wg.Add(1)
	go fw.processEvents()

	fw.wg.Add(1)
	go fw.debouncer.run(fw.ctx, &fw.wg)

	debug.Printf("File watcher started")
	return nil
}

// Stop stops the watcher and waits for its goroutines to exit.
func (fw *FileWatcher) Stop() error {
	fw.cancel()

	if err := fw.watcher.Close(); err != nil {
		log.Printf("Error closing fsnotify watcher: %v", err)
	}

	fw.wg.Wait()
	return nil
}

// addWatches recursively adds watches to all relevant directories.
func (fw *FileWatcher) addWatches(root string) error {
	// Track visited real paths to prevent symlink cycles.
	visitedDirs := make(map[string]bool)

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors, continue walking
		}
		if !info.IsDir() {
			return nil
		}

		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if visitedDirs[realPath] {
			return filepath.SkipDir
		}
		visitedDirs[realPath] = true

		if fw.shouldIgnoreDirectory(path) {
			return filepath.SkipDir
		}

		if err := fw.watcher.Add(path); err != nil {
			log.Printf("Warning: failed to add watch for %s: %v", path, err)
		}
		return nil
	})
}

// shouldIgnoreDirectory checks a directory against the exclude patterns.
func (fw *FileWatcher) shouldIgnoreDirectory(path string) bool {
	for _, pattern := range fw.config.Exclude {
		dirPattern := pattern
		if strings.HasSuffix(pattern, "/**") {
			dirPattern = strings.TrimSuffix(pattern, "/**")
		}
		if matched, _ := filepath.Match(dirPattern, filepath.Base(path)); matched {
			return true
		}
		if matched, _ := doublestar.Match(pattern, filepath.ToSlash(path)); matched {
			return true
		}
	}
	return false
}

// processEvents drains fsnotify events into the debouncer.
func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.incrementStats(0, 1)
			log.Printf("File watcher error: %v", err)
		}
	}
}

// handleEvent classifies a single file system event.
func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	debug.Printf("FileWatcher: received event %v for path %s", event.Op, path)

	info, err := os.Stat(path)
	if err != nil {
		// File might have been deleted or renamed away.
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && fw.shouldProcessPath(path) {
			fw.debouncer.addEvent(path, FileEventRemove)
		}
		return
	}

	if info.IsDir() {
		// Watch new directories as they appear.
		if event.Op&fsnotify.Create != 0 && !fw.shouldIgnoreDirectory(path) {
			if err := fw.watcher.Add(path); err != nil {
				log.Printf("Warning: failed to add watch for new directory %s: %v", path, err)
			}
		}
		return
	}

	if info.Size() > fw.config.Index.MaxFileSize {
		debug.Printf("FileWatcher: skipping oversized file %s (%d bytes > %d limit)", path, info.Size(), fw.config.Index.MaxFileSize)
		return
	}
	if !fw.shouldProcessPath(path) {
		return
	}

	var eventType FileEventType
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = FileEventCreate
	case event.Op&fsnotify.Write != 0:
		eventType = FileEventWrite
	case event.Op&fsnotify.Remove != 0:
		eventType = FileEventRemove
	case event.Op&fsnotify.Rename != 0:
		eventType = FileEventRename
	default:
		return
	}

	fw.debouncer.addEvent(path, eventType)
}

// shouldProcessPath checks a file path against the include patterns.
func (fw *FileWatcher) shouldProcessPath(path string) bool {
	slashed := filepath.ToSlash(path)
	for _, pattern := range fw.config.Include {
		if matched, err := doublestar.Match(pattern, slashed); err == nil && matched {
			return true
		}
		if fw.config.Project.Root != "" {
			if relPath, err := filepath.Rel(fw.config.Project.Root, path); err == nil {
				if matched, _ := doublestar.Match(pattern, filepath.ToSlash(relPath)); matched {
					return true
				}
			}
		}
	}
	return false
}

// eventDebouncer batches file events so a burst of writes to the same
// file produces a single re-index.
type eventDebouncer struct {
	events    map[string]FileEventType
	mutex     sync.Mutex
	debounce  time.Duration
	timer     *time.Timer
	callbacks *FileWatcher

	// flushMu serializes flushes against shutdown: a timer that already
	// fired may be mid-callbacks when the context is cancelled, and Stop
	// must not return while the index is still being called into.
	flushMu sync.Mutex
	stopped bool
}

func newEventDebouncer(debounce time.Duration) *eventDebouncer {
	return &eventDebouncer{
		events:   make(map[string]FileEventType),
		debounce: debounce,
	}
}

func (d *eventDebouncer) setCallbacks(fw *FileWatcher) {
	d.callbacks = fw
}

// addEvent records the latest event for a path and restarts the timer.
func (d *eventDebouncer) addEvent(path string, eventType FileEventType) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.events[path] = eventType

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, d.flush)
}

func (d *eventDebouncer) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	<-ctx.Done()

	d.mutex.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mutex.Unlock()

	// Wait out a flush that is already delivering callbacks, then mark
	// stopped so a timer firing after this point delivers nothing.
	// Events pending at shutdown are dropped: flushing them here would
	// call back into the index while it is being torn down.
	d.flushMu.Lock()
	d.stopped = true
	d.flushMu.Unlock()
}

// flush hands all accumulated events to the callbacks.
func (d *eventDebouncer) flush() {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()
	if d.stopped {
		return
	}

	d.mutex.Lock()
	events := d.events
	d.events = make(map[string]FileEventType)
	d.mutex.Unlock()

	if len(events) == 0 {
		return
	}

	var creates, removes, changes []string
	for path, eventType := range events {
		switch eventType {
		case FileEventCreate:
			creates = append(creates, path)
		case FileEventRemove, FileEventRename:
			removes = append(removes, path)
		case FileEventWrite:
			changes = append(changes, path)
		}
	}

	// Removals first, so a rename never leaves both old and new entries
	// live at the same time.
	for _, path := range removes {
		if d.callbacks != nil && d.callbacks.onFileRemoved != nil {
			d.callbacks.onFileRemoved(path)
			d.callbacks.incrementStats(1, 0)
		}
	}
	for _, path := range changes {
		if d.callbacks != nil && d.callbacks.onFileChanged != nil {
			d.callbacks.onFileChanged(path)
			d.callbacks.incrementStats(1, 0)
		}
	}
	for _, path := range creates {
		if d.callbacks != nil && d.callbacks.onFileCreated != nil {
			d.callbacks.onFileCreated(path)
			d.callbacks.incrementStats(1, 0)
		}
	}
}

// incrementStats updates watch statistics.
func (fw *FileWatcher) incrementStats(events, errors int64) {
	fw.statsMu.Lock()
	defer fw.statsMu.Unlock()

	fw.eventsProcessed += events
	fw.errorCount += errors
	fw.lastEventTime = time.Now()
}

// Stats returns current watch statistics.
func (fw *FileWatcher) Stats() WatchStats {
	fw.statsMu.RLock()
	defer fw.statsMu.RUnlock()

	return WatchStats{
		EventsProcessed: fw.eventsProcessed,
		ErrorCount:      fw.errorCount,
		LastEventTime:   fw.lastEventTime,
		IsActive:        fw.ctx.Err() == nil,
	}
}

// WatchStats describes watcher activity since Start.
type WatchStats struct {
	EventsProcessed int64
	ErrorCount      int64
	LastEventTime   time.Time
	IsActive        bool
}
