package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardlang/wci/internal/config"
	"github.com/wardlang/wci/internal/indexing"
	"github.com/wardlang/wci/internal/types"
	"github.com/wardlang/wci/pkg/pathutil"
)

// testEnv builds an enabled cache environment with its own base dir and a
// fixed clock.
func testEnv(t *testing.T, root string) Env {
	t.Helper()
	cfg := config.Default()
	cfg.Project.Root = root
	cfg.Cache.Enabled = true
	cfg.Cache.Dir = filepath.Join(t.TempDir(), "cachebase")
	cfg.Cache.LockWaitMs = 100
	env := NewEnv(root, cfg)
	env.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return env
}

// populateWorkspace writes contract files and indexes them.
func populateWorkspace(t *testing.T, root string, files map[string]string) *indexing.WorkspaceIndex {
	t.Helper()
	idx := indexing.NewWorkspaceIndex()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		idx.OpenOrUpdate(pathutil.ToURI(path), content)
	}
	return idx
}

func envDir(t *testing.T, env Env) string {
	t.Helper()
	dir, err := env.Dir()
	require.NoError(t, err)
	return dir
}

func TestCache_RoundTrip(t *testing.T) {
	root := t.TempDir()
	env := testEnv(t, root)
	idx := populateWorkspace(t, root, map[string]string{
		"a.ward": `contract foo(x) = x`,
		"b.ward": `contract "bar"(y) = foo(y)`,
	})

	require.NoError(t, Save(context.Background(), env, idx))

	snaps, outcome := Load(context.Background(), env)
	require.Equal(t, LoadOK, outcome)
	require.Len(t, snaps, 2)

	byURI := make(map[string]*indexing.Snapshot)
	for _, s := range snaps {
		byURI[s.URI] = s
		assert.True(t, s.Reconstructible, "persisted snapshots omit trees")
	}
	for _, orig := range idx.Snapshots() {
		loaded := byURI[orig.URI]
		require.NotNil(t, loaded, "missing %s", orig.URI)
		assert.Equal(t, orig.ContentHash, loaded.ContentHash)
		assert.Equal(t, orig.Size, loaded.Size)
	}

	// A fresh index restored from the loaded snapshots answers the same
	// queries as the original.
	fresh := indexing.NewWorkspaceIndex()
	fresh.BulkLoad(snaps)
	_, ok := fresh.FindDefinition("bar")
	assert.True(t, ok, "quoted definition survives the round trip")
	matches, err := fresh.FindInvocations("foo(?a)")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	arg, _ := matches[0].Bindings.Get("a")
	assert.Equal(t, "y", arg)
}

func TestCache_ModifiedFileDroppedOnLoad(t *testing.T) {
	root := t.TempDir()
	env := testEnv(t, root)
	idx := populateWorkspace(t, root, map[string]string{
		"keep.ward":  `contract keep(x) = x`,
		"churn.ward": `contract churn(x) = x`,
	})
	require.NoError(t, Save(context.Background(), env, idx))

	// Touch one file after the save so its snapshot fails validation.
	churned := filepath.Join(root, "churn.ward")
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(churned, future, future))

	snaps, outcome := Load(context.Background(), env)
	require.Equal(t, LoadOK, outcome)
	require.Len(t, snaps, 1, "stale entry must be dropped, the rest kept")
	assert.Equal(t, pathutil.ToURI(filepath.Join(root, "keep.ward")), snaps[0].URI)
}

func TestCache_MissingFileDroppedOnLoad(t *testing.T) {
	root := t.TempDir()
	env := testEnv(t, root)
	idx := populateWorkspace(t, root, map[string]string{
		"gone.ward": `contract gone(x) = x`,
	})
	require.NoError(t, Save(context.Background(), env, idx))
	require.NoError(t, os.Remove(filepath.Join(root, "gone.ward")))

	snaps, outcome := Load(context.Background(), env)
	assert.Equal(t, LoadOK, outcome)
	assert.Empty(t, snaps)
}

func TestCache_VersionMismatchDiscardsDirectory(t *testing.T) {
	root := t.TempDir()
	env := testEnv(t, root)
	idx := populateWorkspace(t, root, map[string]string{"a.ward": `contract a(x) = x`})
	require.NoError(t, Save(context.Background(), env, idx))

	dir := envDir(t, env)
	meta := Metadata{FormatVersion: 999, CreatedAt: env.Now(), EntryCount: 1, Producer: "wci/test"}
	data, err := toml.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, metaFileName), data, 0644))

	_, outcome := Load(context.Background(), env)
	assert.Equal(t, LoadVersionMismatch, outcome)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "mismatched cache directory must be deleted")

	// Next load is a clean cold start.
	_, outcome = Load(context.Background(), env)
	assert.Equal(t, LoadNotFound, outcome)
}

func TestCache_CorruptBlobDiscardsDirectory(t *testing.T) {
	root := t.TempDir()
	env := testEnv(t, root)
	idx := populateWorkspace(t, root, map[string]string{"a.ward": `contract a(x) = x`})
	require.NoError(t, Save(context.Background(), env, idx))

	dir := envDir(t, env)
	require.NoError(t, os.WriteFile(filepath.Join(dir, blobFileName), []byte("not gzip at all"), 0644))

	_, outcome := Load(context.Background(), env)
	assert.Equal(t, LoadCorrupt, outcome)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCache_MetaWithoutBlobIsCorrupt(t *testing.T) {
	root := t.TempDir()
	env := testEnv(t, root)
	idx := populateWorkspace(t, root, map[string]string{"a.ward": `contract a(x) = x`})
	require.NoError(t, Save(context.Background(), env, idx))

	dir := envDir(t, env)
	require.NoError(t, os.Remove(filepath.Join(dir, blobFileName)))

	_, outcome := Load(context.Background(), env)
	assert.Equal(t, LoadCorrupt, outcome)
}

func TestCache_EntryCountMismatchIsCorrupt(t *testing.T) {
	root := t.TempDir()
	env := testEnv(t, root)
	idx := populateWorkspace(t, root, map[string]string{"a.ward": `contract a(x) = x`})
	require.NoError(t, Save(context.Background(), env, idx))

	dir := envDir(t, env)
	meta := Metadata{FormatVersion: types.CacheFormatVersion, CreatedAt: env.Now(), EntryCount: 7, Producer: "wci/test"}
	data, err := toml.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, metaFileName), data, 0644))

	_, outcome := Load(context.Background(), env)
	assert.Equal(t, LoadCorrupt, outcome)
}

func TestCache_StrayTempFileIgnored(t *testing.T) {
	root := t.TempDir()
	env := testEnv(t, root)
	idx := populateWorkspace(t, root, map[string]string{"a.ward": `contract a(x) = x`})
	require.NoError(t, Save(context.Background(), env, idx))

	// A crash between CreateTemp and rename leaves a temp file behind;
	// the committed blob must still load untouched.
	dir := envDir(t, env)
	require.NoError(t, os.WriteFile(filepath.Join(dir, blobFileName+".tmp-123"), []byte("garbage"), 0644))

	snaps, outcome := Load(context.Background(), env)
	assert.Equal(t, LoadOK, outcome)
	assert.Len(t, snaps, 1)
}

func TestCache_LockContentionSkipsSave(t *testing.T) {
	root := t.TempDir()
	env := testEnv(t, root)
	idx := populateWorkspace(t, root, map[string]string{"a.ward": `contract a(x) = x`})

	dir := envDir(t, env)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockFileName), []byte("12345\n"), 0644))

	// The lock is held by "another process": Save waits out its bound
	// and skips without error.
	start := time.Now()
	require.NoError(t, Save(context.Background(), env, idx))
	assert.Less(t, time.Since(start), 5*time.Second)

	_, outcome := Load(context.Background(), env)
	assert.Equal(t, LoadNotFound, outcome, "skipped save leaves no blob behind")
}

func TestCache_StaleLockIsStolen(t *testing.T) {
	root := t.TempDir()
	env := testEnv(t, root)
	idx := populateWorkspace(t, root, map[string]string{"a.ward": `contract a(x) = x`})

	dir := envDir(t, env)
	require.NoError(t, os.MkdirAll(dir, 0755))
	lockPath := filepath.Join(dir, lockFileName)
	require.NoError(t, os.WriteFile(lockPath, []byte("1\n"), 0644))
	old := time.Now().Add(-10 * time.Minute)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	require.NoError(t, Save(context.Background(), env, idx))
	_, outcome := Load(context.Background(), env)
	assert.Equal(t, LoadOK, outcome, "stale lock must not block the save forever")
}

func TestCache_DisabledIsNoop(t *testing.T) {
	root := t.TempDir()
	env := testEnv(t, root)
	env.Cfg.Cache.Enabled = false
	idx := populateWorkspace(t, root, map[string]string{"a.ward": `contract a(x) = x`})

	require.NoError(t, Save(context.Background(), env, idx))
	snaps, outcome := Load(context.Background(), env)
	assert.Equal(t, LoadDisabled, outcome)
	assert.Nil(t, snaps)
}

func TestCache_CancelledLoadDiscardsPartialResults(t *testing.T) {
	root := t.TempDir()
	env := testEnv(t, root)
	idx := populateWorkspace(t, root, map[string]string{
		"a.ward": `contract a(x) = x`,
		"b.ward": `contract b(x) = x`,
	})
	require.NoError(t, Save(context.Background(), env, idx))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snaps, outcome := Load(ctx, env)
	assert.Equal(t, LoadCancelled, outcome)
	assert.Nil(t, snaps)
}

func TestCache_VirtualDocumentsNotPersisted(t *testing.T) {
	root := t.TempDir()
	env := testEnv(t, root)
	idx := populateWorkspace(t, root, map[string]string{"a.ward": `contract a(x) = x`})
	idx.OpenOrUpdate("untitled:scratch", `contract scratch(x) = x`)

	require.NoError(t, Save(context.Background(), env, idx))
	snaps, outcome := Load(context.Background(), env)
	require.Equal(t, LoadOK, outcome)
	require.Len(t, snaps, 1)
	assert.NotEqual(t, "untitled:scratch", snaps[0].URI)
}

func TestCache_UnsavedBufferNotPersisted(t *testing.T) {
	root := t.TempDir()
	env := testEnv(t, root)
	idx := populateWorkspace(t, root, map[string]string{"clean.ward": `contract clean(x) = x`})

	// An open buffer shadows its file with different content. The disk
	// file is unchanged, so timestamp and size validation alone would
	// accept a persisted record describing the buffer.
	path := filepath.Join(root, "dirty.ward")
	require.NoError(t, os.WriteFile(path, []byte(`contract ondisk(x) = x`), 0644))
	idx.OpenOrUpdate(pathutil.ToURI(path), `contract buffer(x) = x`)

	require.NoError(t, Save(context.Background(), env, idx))
	snaps, outcome := Load(context.Background(), env)
	require.Equal(t, LoadOK, outcome)
	require.Len(t, snaps, 1, "only the file whose index matches disk is persisted")
	assert.Equal(t, pathutil.ToURI(filepath.Join(root, "clean.ward")), snaps[0].URI)

	fresh := indexing.NewWorkspaceIndex()
	fresh.BulkLoad(snaps)
	_, ok := fresh.FindDefinition("buffer")
	assert.False(t, ok, "buffer content must not survive into the next session")
	_, ok = fresh.FindDefinition("ondisk")
	assert.False(t, ok, "dirty.ward is re-indexed from disk, not from the cache")
}

func TestCache_MetadataRecordsClockAndProducer(t *testing.T) {
	root := t.TempDir()
	env := testEnv(t, root)
	idx := populateWorkspace(t, root, map[string]string{"a.ward": `contract a(x) = x`})
	require.NoError(t, Save(context.Background(), env, idx))

	data, err := os.ReadFile(filepath.Join(envDir(t, env), metaFileName))
	require.NoError(t, err)
	var meta Metadata
	require.NoError(t, toml.Unmarshal(data, &meta))
	assert.Equal(t, env.Now(), meta.CreatedAt.UTC())
	assert.Equal(t, 1, meta.EntryCount)
	assert.Contains(t, meta.Producer, "wci/")
}

func TestCache_DirForRootIsolatesWorkspaces(t *testing.T) {
	a := DirForRoot("/base", "/home/alice/project")
	b := DirForRoot("/base", "/home/bob/project")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, DirForRoot("/base", "/home/alice/project"))
}
