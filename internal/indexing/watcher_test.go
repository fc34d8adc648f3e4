package indexing

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wardlang/wci/internal/config"
)

func watcherConfig(root string) *config.Config {
	cfg := config.Default()
	cfg.Project.Root = root
	cfg.Index.WatchMode = true
	cfg.Index.WatchDebounceMs = 50 // short debounce for testing
	return cfg
}

// eventRecorder collects watcher callbacks for assertion.
type eventRecorder struct {
	mu      sync.Mutex
	created []string
	changed []string
	removed []string
}

func (r *eventRecorder) attach(fw *FileWatcher) {
	fw.SetCallbacks(
		func(path string) { r.record(&r.changed, path) },
		func(path string) { r.record(&r.created, path) },
		func(path string) { r.record(&r.removed, path) },
	)
}

func (r *eventRecorder) record(dst *[]string, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*dst = append(*dst, path)
}

func (r *eventRecorder) snapshot() (created, changed, removed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.created...),
		append([]string(nil), r.changed...),
		append([]string(nil), r.removed...)
}

func TestFileWatcher_CreateWriteRemove(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file watcher test in short mode")
	}
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	fw, err := NewFileWatcher(watcherConfig(dir))
	require.NoError(t, err)

	rec := &eventRecorder{}
	rec.attach(fw)
	require.NoError(t, fw.Start(dir))
	defer func() { require.NoError(t, fw.Stop()) }()

	path := filepath.Join(dir, "watched.ward")
	require.NoError(t, os.WriteFile(path, []byte(`contract watched(x) = x`), 0644))

	require.Eventually(t, func() bool {
		created, changed, _ := rec.snapshot()
		return len(created)+len(changed) > 0
	}, 5*time.Second, 20*time.Millisecond, "create event never arrived")

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		_, _, removed := rec.snapshot()
		return len(removed) > 0
	}, 5*time.Second, 20*time.Millisecond, "remove event never arrived")

	_, _, removed := rec.snapshot()
	assert.Contains(t, removed, path)
	assert.Greater(t, fw.Stats().EventsProcessed, int64(0))
}

func TestFileWatcher_IgnoresNonMatchingFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file watcher test in short mode")
	}
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	fw, err := NewFileWatcher(watcherConfig(dir))
	require.NoError(t, err)

	rec := &eventRecorder{}
	rec.attach(fw)
	require.NoError(t, fw.Start(dir))
	defer func() { require.NoError(t, fw.Stop()) }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a contract"), 0644))
	matching := filepath.Join(dir, "real.ward")
	require.NoError(t, os.WriteFile(matching, []byte(`contract real(x) = x`), 0644))

	require.Eventually(t, func() bool {
		created, changed, _ := rec.snapshot()
		return len(created)+len(changed) > 0
	}, 5*time.Second, 20*time.Millisecond)

	created, changed, _ := rec.snapshot()
	for _, p := range append(created, changed...) {
		assert.Equal(t, matching, p, "only files matching the include patterns may surface")
	}
}

func TestFileWatcher_DebounceCoalescesWrites(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file watcher test in short mode")
	}
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "busy.ward")
	require.NoError(t, os.WriteFile(path, []byte(`contract busy(x) = x`), 0644))

	fw, err := NewFileWatcher(watcherConfig(dir))
	require.NoError(t, err)

	rec := &eventRecorder{}
	rec.attach(fw)
	require.NoError(t, fw.Start(dir))
	defer func() { require.NoError(t, fw.Stop()) }()

	// A burst of writes inside one debounce window collapses to a
	// single callback for the path.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte(`contract busy(x) = x`), 0644))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		created, changed, _ := rec.snapshot()
		return len(created)+len(changed) > 0
	}, 5*time.Second, 20*time.Millisecond)
	time.Sleep(100 * time.Millisecond) // let any stray flushes land

	created, changed, _ := rec.snapshot()
	assert.LessOrEqual(t, len(created)+len(changed), 2,
		"burst of writes must coalesce, got %d created %d changed", len(created), len(changed))
}

func TestFileWatcher_DisabledByConfig(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	cfg := watcherConfig(dir)
	cfg.Index.WatchMode = false

	fw, err := NewFileWatcher(cfg)
	require.NoError(t, err)
	require.NoError(t, fw.Start(dir))
	require.NoError(t, fw.Stop())
}

func TestFileWatcher_OversizedFileSkipped(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file watcher test in short mode")
	}
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	cfg := watcherConfig(dir)
	cfg.Index.MaxFileSize = 16

	fw, err := NewFileWatcher(cfg)
	require.NoError(t, err)

	rec := &eventRecorder{}
	rec.attach(fw)
	require.NoError(t, fw.Start(dir))
	defer func() { require.NoError(t, fw.Stop()) }()

	big := filepath.Join(dir, "big.ward")
	require.NoError(t, os.WriteFile(big, []byte(`contract far_too_long_for_the_limit(x) = x`), 0644))
	small := filepath.Join(dir, "small.ward")
	require.NoError(t, os.WriteFile(small, []byte(`contract s(x)=x`), 0644))

	require.Eventually(t, func() bool {
		created, changed, _ := rec.snapshot()
		return len(created)+len(changed) > 0
	}, 5*time.Second, 20*time.Millisecond)

	created, changed, _ := rec.snapshot()
	for _, p := range append(created, changed...) {
		assert.Equal(t, small, p, "oversized files never surface")
	}
}

func TestEventDebouncer_ShutdownWaitsForInflightFlush(t *testing.T) {
	defer goleak.VerifyNone(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0

	fw := &FileWatcher{}
	fw.onFileChanged = func(path string) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			close(entered)
			<-release
		}
	}

	d := newEventDebouncer(time.Millisecond)
	d.setCallbacks(fw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go d.run(ctx, &wg)

	d.addEvent("/ws/a.ward", FileEventWrite)
	<-entered // flush is mid-callback

	cancel()
	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("shutdown returned while a flush was still delivering events")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown never completed after the flush finished")
	}

	// A timer firing after shutdown must not call back in.
	d.addEvent("/ws/b.ward", FileEventWrite)
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}
