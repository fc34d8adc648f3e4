package indexing

import (
	"log"
	"os"
	"sort"
	"sync"
	"time"

	edlib "github.com/hbollon/go-edlib"

	"github.com/wardlang/wci/internal/core"
	"github.com/wardlang/wci/internal/parser"
	"github.com/wardlang/wci/internal/types"
)

// nameEntry is one canonical-name map value: where the definition lives.
type nameEntry struct {
	URI      string
	Location types.Location
}

// WorkspaceIndex owns the live index structures of one workspace: the
// uri to snapshot map, the canonical-name map, and one pattern store.
//
// Mutations (re-index, close, bulk load) are serialized by the write lock;
// queries run under the read lock and observe either the pre- or the
// post-mutation state, never a partially applied one.
type WorkspaceIndex struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
	names     map[types.CanonicalName]nameEntry
	refs      map[types.CanonicalName]map[types.Location]string // location -> owning uri
	store     *core.PatternStore
	arena     *core.Arena
}

// NewWorkspaceIndex creates an empty index.
func NewWorkspaceIndex() *WorkspaceIndex {
	arena := core.NewArena()
	return &WorkspaceIndex{
		snapshots: make(map[string]*Snapshot),
		names:     make(map[types.CanonicalName]nameEntry),
		refs:      make(map[types.CanonicalName]map[types.Location]string),
		store:     core.NewPatternStoreWithArena(arena),
		arena:     arena,
	}
}

// OpenOrUpdate re-parses text and replaces the uri's snapshot: the old
// snapshot's fragments are retracted, the new ones inserted, and the
// canonical-name and reference maps updated, in one logical step.
func (w *WorkspaceIndex) OpenOrUpdate(uri, text string) *Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	fileID := w.arena.FileID(uri)
	gen := w.arena.Put(fileID, uri)
	snap := NewSnapshot(uri, fileID, gen, text, time.Time{}, int64(len(text)))
	if snap.Path != "" {
		// Disk metadata is adopted only when the disk bytes are the text
		// being indexed. A diverged editor buffer keeps the zero ModTime,
		// which excludes it from persistence: a cached (hash, modtime)
		// pair must always describe the same on-disk bytes.
		if info, err := os.Stat(snap.Path); err == nil && info.Size() == snap.Size {
			if content, err := os.ReadFile(snap.Path); err == nil && HashBytes(content) == snap.ContentHash {
				snap.ModTime = info.ModTime()
			}
		}
	}

	w.installLocked(snap)
	return snap
}

// installLocked swaps a snapshot into the live structures. The caller
// holds the write lock.
func (w *WorkspaceIndex) installLocked(snap *Snapshot) {
	if old := w.snapshots[snap.URI]; old != nil {
		w.retractLocked(old)
	}
	w.snapshots[snap.URI] = snap
	w.store.Insert(snap.Fragments)
	if snap.Symbols == nil {
		return
	}
	for _, def := range snap.Symbols.Definitions {
		if _, taken := w.names[def.Name]; !taken {
			w.names[def.Name] = nameEntry{URI: snap.URI, Location: def.Location}
		}
	}
	for _, ref := range snap.Symbols.References {
		sites := w.refs[ref.Name]
		if sites == nil {
			sites = make(map[types.Location]string)
			w.refs[ref.Name] = sites
		}
		sites[ref.Location] = snap.URI
	}
}

// retractLocked removes a snapshot's fragments and map entries. The caller
// holds the write lock.
func (w *WorkspaceIndex) retractLocked(old *Snapshot) {
	w.store.Retract(old.FileID)
	if old.Symbols == nil {
		return
	}
	for _, def := range old.Symbols.Definitions {
		if entry, ok := w.names[def.Name]; ok && entry.URI == old.URI {
			delete(w.names, def.Name)
		}
	}
	for _, ref := range old.Symbols.References {
		if sites := w.refs[ref.Name]; sites != nil {
			if sites[ref.Location] == old.URI {
				delete(sites, ref.Location)
			}
			if len(sites) == 0 {
				delete(w.refs, ref.Name)
			}
		}
	}
	// Another file may define a name this one shadowed; repromote it so
	// the name map only ever misses names with no live definition.
	for _, other := range w.snapshots {
		if other.URI == old.URI || other.Symbols == nil {
			continue
		}
		for _, def := range other.Symbols.Definitions {
			if _, taken := w.names[def.Name]; !taken {
				w.names[def.Name] = nameEntry{URI: other.URI, Location: def.Location}
			}
		}
	}
}

// dropIfCurrent closes uri only while snap is still its live snapshot.
// A writer may have replaced the entry since the caller last observed
// snap; the replacement is fresher than the caller's failure and stays.
func (w *WorkspaceIndex) dropIfCurrent(uri string, snap *Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.snapshots[uri] != snap {
		return
	}
	delete(w.snapshots, uri)
	w.retractLocked(snap)
	w.arena.Drop(snap.FileID)
}

// Close destroys the uri's snapshot: fragments are retracted and name map
// entries pointing at it removed in the same logical step.
func (w *WorkspaceIndex) Close(uri string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := w.snapshots[uri]
	if snap == nil {
		return
	}
	delete(w.snapshots, uri)
	w.retractLocked(snap)
	w.arena.Drop(snap.FileID)
}

// BulkLoad merges validated snapshots from a cache load into the live
// structures in one pass. Existing entries for the same uri win: a
// document the editor already opened is fresher than anything on disk.
func (w *WorkspaceIndex) BulkLoad(snaps []*Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, snap := range snaps {
		if _, exists := w.snapshots[snap.URI]; exists {
			continue
		}
		// Re-mint identity under this index's arena; persisted IDs
		// belong to the arena that wrote them.
		fileID := w.arena.FileID(snap.URI)
		gen := w.arena.Put(fileID, snap.URI)
		snap.FileID = fileID
		snap.Gen = gen
		for i := range snap.Fragments {
			snap.Fragments[i].Owner = fileID
			snap.Fragments[i].Gen = gen
		}
		w.installLocked(snap)
	}
}

// Snapshot returns the live snapshot for a uri.
func (w *WorkspaceIndex) Snapshot(uri string) (*Snapshot, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	snap, ok := w.snapshots[uri]
	return snap, ok
}

// Snapshots returns the live snapshots, sorted by uri for determinism.
func (w *WorkspaceIndex) Snapshots() []*Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Snapshot, 0, len(w.snapshots))
	for _, s := range w.snapshots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// Tree returns the parse tree for a uri, lazily reconstructing snapshots
// loaded from disk without one. Reconstruction happens at most once; if
// the re-read fails or the content changed underneath, the entry degrades
// to stale and is dropped.
func (w *WorkspaceIndex) Tree(uri string) (*parser.Tree, bool) {
	w.mu.RLock()
	snap, ok := w.snapshots[uri]
	w.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !snap.Reconstructible {
		return snap.Tree, snap.Tree != nil
	}

	content, err := os.ReadFile(snap.Path)
	if err != nil || HashBytes(content) != snap.ContentHash {
		log.Printf("wci: reconstruction failed for %s, dropping cached entry: %v", uri, err)
		w.dropIfCurrent(uri, snap)
		return nil, false
	}

	rebuilt := snap.Reconstruct(string(content))

	w.mu.Lock()
	defer w.mu.Unlock()
	// Another writer may have replaced the snapshot while we read; only
	// install over the exact entry we reconstructed from.
	if current := w.snapshots[uri]; current == snap {
		rebuilt.Gen = w.arena.Put(rebuilt.FileID, uri)
		for i := range rebuilt.Fragments {
			rebuilt.Fragments[i].Gen = rebuilt.Gen
		}
		w.installLocked(rebuilt)
		return rebuilt.Tree, true
	}
	if current := w.snapshots[uri]; current != nil && current.Tree != nil {
		return current.Tree, true
	}
	return nil, false
}

// FindDefinition resolves a canonical name to its definition location.
func (w *WorkspaceIndex) FindDefinition(name types.CanonicalName) (types.Location, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	entry, ok := w.names[name]
	if !ok {
		return types.Location{}, false
	}
	return entry.Location, true
}

// FindReferences returns every invocation site of a canonical name across
// the workspace, ordered by uri then offset.
func (w *WorkspaceIndex) FindReferences(name types.CanonicalName) []types.Location {
	w.mu.RLock()
	defer w.mu.RUnlock()

	sites := w.refs[name]
	if len(sites) == 0 {
		return nil
	}
	out := make([]types.Location, 0, len(sites))
	for loc := range sites {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].URI != out[j].URI {
			return out[i].URI < out[j].URI
		}
		return out[i].Offset < out[j].Offset
	})
	return out
}

// FindInvocations runs a unification query over every indexed invocation.
func (w *WorkspaceIndex) FindInvocations(patternShape string) ([]core.Match, error) {
	return w.store.QueryText(patternShape)
}

// SuggestNames returns fuzzy candidates for a name that failed to resolve,
// best match first.
func (w *WorkspaceIndex) SuggestNames(name types.CanonicalName, max int) []types.CanonicalName {
	w.mu.RLock()
	known := make([]string, 0, len(w.names))
	for n := range w.names {
		known = append(known, string(n))
	}
	w.mu.RUnlock()

	if len(known) == 0 || max <= 0 {
		return nil
	}
	sort.Strings(known)
	matches, err := edlib.FuzzySearchSetThreshold(string(name), known, max, 0.6, edlib.Levenshtein)
	if err != nil {
		return nil
	}
	out := make([]types.CanonicalName, 0, len(matches))
	for _, m := range matches {
		if m != "" {
			out = append(out, types.CanonicalName(m))
		}
	}
	return out
}

// Store exposes the pattern store for persistence and tests.
func (w *WorkspaceIndex) Store() *core.PatternStore {
	return w.store
}

// Len returns the number of live snapshots.
func (w *WorkspaceIndex) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.snapshots)
}
