// Package cache persists workspace snapshots to disk and restores them,
// atomically and with format versioning. Every failure path degrades to a
// cold rebuild: Load never surfaces a fatal error to its caller.
package cache

import (
	"compress/gzip"
	"context"
	"encoding/gob"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/sync/errgroup"

	"github.com/wardlang/wci/internal/config"
	"github.com/wardlang/wci/internal/core"
	wcierrors "github.com/wardlang/wci/internal/errors"
	"github.com/wardlang/wci/internal/indexing"
	"github.com/wardlang/wci/internal/symbols"
	"github.com/wardlang/wci/internal/types"
	"github.com/wardlang/wci/internal/version"
)

const (
	metaFileName = "meta.toml"
	blobFileName = "snapshots.bin.gz"
)

// Env is the explicit context persistence calls run under: workspace root,
// configuration, and a clock. It is constructed at initialize and torn
// down at shutdown; injecting a fake clock makes timestamp-sensitive tests
// deterministic.
type Env struct {
	Root string
	Cfg  *config.Config
	Now  func() time.Time
}

// NewEnv builds a persistence environment with the real clock.
func NewEnv(root string, cfg *config.Config) Env {
	return Env{Root: root, Cfg: cfg, Now: time.Now}
}

// Metadata is the once-per-save record checked once per load.
type Metadata struct {
	FormatVersion int       `toml:"format_version"`
	CreatedAt     time.Time `toml:"created_at"`
	EntryCount    int       `toml:"entry_count"`
	Producer      string    `toml:"producer"`
}

// LoadOutcome classifies what Load found on disk.
type LoadOutcome int

const (
	LoadOK LoadOutcome = iota
	LoadNotFound
	LoadVersionMismatch
	LoadCorrupt
	LoadIOError
	LoadDisabled
	LoadCancelled
)

func (o LoadOutcome) String() string {
	switch o {
	case LoadOK:
		return "ok"
	case LoadNotFound:
		return "not_found"
	case LoadVersionMismatch:
		return "version_mismatch"
	case LoadCorrupt:
		return "corrupt"
	case LoadIOError:
		return "io_error"
	case LoadDisabled:
		return "disabled"
	case LoadCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// snapshotRecord is the persisted form of one snapshot. Source text and
// tree handles are intentionally omitted to keep the blob compact; they
// are reconstructed lazily from the file on first use.
type snapshotRecord struct {
	URI             string
	Path            string
	ContentHash     uint64
	ModTimeUnixNano int64
	Size            int64
	Definitions     []types.Definition
	References      []types.Reference
	Fragments       []fragmentRecord
}

type fragmentRecord struct {
	Kind    uint8
	Tokens  []tokenRecord
	Payload types.Location
}

type tokenRecord struct {
	Kind  uint8
	Text  string
	Arity int
}

// DirForRoot returns the per-workspace cache directory: the base directory
// plus a collision-resistant hash of the absolute workspace root, so two
// projects can never interfere with each other's caches.
func DirForRoot(baseDir, absRoot string) string {
	return filepath.Join(baseDir, fmt.Sprintf("%016x", xxhash.Sum64String(absRoot)))
}

// Dir resolves the cache directory for an environment.
func (e Env) Dir() (string, error) {
	base, err := e.Cfg.CacheBaseDir()
	if err != nil {
		return "", err
	}
	absRoot, err := filepath.Abs(e.Root)
	if err != nil {
		return "", err
	}
	return DirForRoot(base, absRoot), nil
}

// Save serializes the index's snapshots into the workspace's cache
// directory via temp-file-then-atomic-rename. It is best effort: if the
// per-directory write lock cannot be acquired within the configured bound
// the save is skipped with a warning, never an error that blocks shutdown.
func Save(ctx context.Context, env Env, idx *indexing.WorkspaceIndex) error {
	if env.Cfg == nil || !env.Cfg.Cache.Enabled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return nil
	}
	dir, err := env.Dir()
	if err != nil {
		return wcierrors.New(wcierrors.ErrorTypeIO, "save", err).WithRecoverable(true)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return wcierrors.New(wcierrors.ErrorTypeIO, "save", err).WithPath(dir).WithRecoverable(true)
	}

	lock, err := acquireLock(dir, time.Duration(env.Cfg.Cache.LockWaitMs)*time.Millisecond)
	if err != nil {
		log.Printf("wci: skipping cache save for %s: %v", env.Root, err)
		return nil
	}
	defer lock.release()

	records := buildRecords(idx)

	if err := writeBlobAtomic(dir, records); err != nil {
		return wcierrors.New(wcierrors.ErrorTypeIO, "save", err).WithPath(dir).WithRecoverable(true)
	}

	meta := Metadata{
		FormatVersion: types.CacheFormatVersion,
		CreatedAt:     env.Now(),
		EntryCount:    len(records),
		Producer:      version.Producer(),
	}
	if err := writeMetaAtomic(dir, meta); err != nil {
		return wcierrors.New(wcierrors.ErrorTypeIO, "save", err).WithPath(dir).WithRecoverable(true)
	}
	return nil
}

func buildRecords(idx *indexing.WorkspaceIndex) []snapshotRecord {
	snaps := idx.Snapshots()
	records := make([]snapshotRecord, 0, len(snaps))
	for _, s := range snaps {
		if s.Path == "" {
			// Virtual documents have no on-disk state to validate
			// against after a restart; they are always re-indexed.
			continue
		}
		if s.ModTime.IsZero() {
			// An editor buffer that diverges from its backing file
			// carries no disk metadata. Persisting it would let a later
			// load validate buffer content against the unchanged file;
			// the file is re-indexed from disk on the next start instead.
			continue
		}
		rec := snapshotRecord{
			URI:             s.URI,
			Path:            s.Path,
			ContentHash:     s.ContentHash,
			ModTimeUnixNano: s.ModTime.UnixNano(),
			Size:            s.Size,
		}
		if s.Symbols != nil {
			rec.Definitions = s.Symbols.Definitions
			rec.References = s.Symbols.References
		}
		for _, f := range s.Fragments {
			fr := fragmentRecord{Kind: uint8(f.Kind), Payload: f.Payload}
			for _, t := range f.Tokens {
				fr.Tokens = append(fr.Tokens, tokenRecord{Kind: uint8(t.Kind), Text: t.Text, Arity: t.Arity})
			}
			rec.Fragments = append(rec.Fragments, fr)
		}
		records = append(records, rec)
	}
	return records
}

// writeBlobAtomic writes the compressed snapshot list next to its final
// name and renames it into place, so a crash mid-write never corrupts the
// previously committed blob.
func writeBlobAtomic(dir string, records []snapshotRecord) error {
	tmp, err := os.CreateTemp(dir, blobFileName+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	zw := gzip.NewWriter(tmp)
	if err := gob.NewEncoder(zw).Encode(records); err != nil {
		tmp.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, filepath.Join(dir, blobFileName))
}

func writeMetaAtomic(dir string, meta Metadata) error {
	data, err := toml.Marshal(meta)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, metaFileName+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, filepath.Join(dir, metaFileName))
}

// Load restores and validates the workspace's persisted snapshots. The
// contract is "get snapshots back, possibly none": corruption and version
// mismatches delete the cache directory and fall back to a cold start,
// and per-entry validation failures drop the entry silently.
func Load(ctx context.Context, env Env) ([]*indexing.Snapshot, LoadOutcome) {
	if env.Cfg == nil || !env.Cfg.Cache.Enabled {
		return nil, LoadDisabled
	}
	dir, err := env.Dir()
	if err != nil {
		log.Printf("wci: cache load failed for %s: %v", env.Root, err)
		return nil, LoadIOError
	}

	meta, outcome := readMeta(dir)
	if outcome != LoadOK {
		if outcome == LoadCorrupt || outcome == LoadVersionMismatch {
			discard(dir, outcome)
		}
		return nil, outcome
	}

	records, outcome := readBlob(dir)
	if outcome != LoadOK {
		if outcome == LoadCorrupt {
			discard(dir, outcome)
		}
		return nil, outcome
	}
	if meta.EntryCount != len(records) {
		discard(dir, LoadCorrupt)
		return nil, LoadCorrupt
	}

	snaps, cancelled := validateRecords(ctx, env, records)
	if cancelled {
		// Teardown raced the load: discard the partially validated
		// result so nothing half-built leaks into a live index.
		return nil, LoadCancelled
	}
	return snaps, LoadOK
}

func readMeta(dir string) (Metadata, LoadOutcome) {
	data, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, LoadNotFound
		}
		return Metadata{}, LoadIOError
	}
	var meta Metadata
	if err := toml.Unmarshal(data, &meta); err != nil {
		return Metadata{}, LoadCorrupt
	}
	if meta.FormatVersion != types.CacheFormatVersion {
		return Metadata{}, LoadVersionMismatch
	}
	return meta, LoadOK
}

func readBlob(dir string) ([]snapshotRecord, LoadOutcome) {
	f, err := os.Open(filepath.Join(dir, blobFileName))
	if err != nil {
		if os.IsNotExist(err) {
			// Metadata without a blob means a save died between the
			// two renames; treat the directory as corrupt.
			return nil, LoadCorrupt
		}
		return nil, LoadIOError
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, LoadCorrupt
	}
	defer zr.Close()

	var records []snapshotRecord
	if err := gob.NewDecoder(zr).Decode(&records); err != nil {
		return nil, LoadCorrupt
	}
	return records, LoadOK
}

// validateRecords runs per-entry staleness validation in parallel and
// materializes snapshots for the entries that survive. Invalid entries are
// dropped silently; the files re-index normally later.
func validateRecords(ctx context.Context, env Env, records []snapshotRecord) ([]*indexing.Snapshot, bool) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(env.Cfg.LoadWorkerCount())

	var mu sync.Mutex
	var snaps []*indexing.Snapshot

	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			snap := recordSnapshot(rec)
			if indexing.ValidatePath(snap, env.Cfg.Cache.VerifyHash) != indexing.Valid {
				return nil
			}
			mu.Lock()
			snaps = append(snaps, snap)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, true
	}
	return snaps, false
}

func recordSnapshot(rec snapshotRecord) *indexing.Snapshot {
	snap := &indexing.Snapshot{
		URI:             rec.URI,
		Path:            rec.Path,
		ContentHash:     rec.ContentHash,
		ModTime:         time.Unix(0, rec.ModTimeUnixNano),
		Size:            rec.Size,
		Symbols:         symbols.FromParts(rec.Definitions, rec.References),
		Reconstructible: true,
	}
	snap.Fragments = make([]core.Fragment, 0, len(rec.Fragments))
	for _, fr := range rec.Fragments {
		frag := core.Fragment{
			Kind:    core.FragmentKind(fr.Kind),
			Payload: fr.Payload,
		}
		for _, t := range fr.Tokens {
			frag.Tokens = append(frag.Tokens, core.Token{Kind: core.TokenKind(t.Kind), Text: t.Text, Arity: t.Arity})
		}
		snap.Fragments = append(snap.Fragments, frag)
	}
	return snap
}

// discard deletes a cache directory that failed to load. Losing a cache is
// a cold rebuild, not an error worth surfacing to the user.
func discard(dir string, why LoadOutcome) {
	log.Printf("wci: discarding cache directory %s (%s)", dir, why)
	if err := os.RemoveAll(dir); err != nil {
		log.Printf("wci: failed to remove cache directory %s: %v", dir, err)
	}
}
