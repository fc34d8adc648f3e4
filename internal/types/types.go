package types

import (
	"fmt"
)

// Common system-wide constants
const (
	// File size limits
	DefaultMaxFileSize = 10 * 1024 * 1024 // 10MB per file - standard limit for indexing
	// Rationale: Prevents memory exhaustion from large
	// generated files while covering effectively all
	// hand-written Ward sources.

	// Cache format
	CacheFormatVersion = 3 // Bump whenever the persisted snapshot layout changes.
	// Rationale: A mismatch discards the whole cache directory
	// and forces a cold rebuild. There is no migration path in
	// this scope, so the version only needs to be monotonic.

	// Persistence lock
	DefaultLockWaitMs = 250 // Bounded wait for the per-directory write lock
	// Rationale: A save is best-effort. Blocking shutdown on a
	// contended lock is worse than skipping one save; the index
	// is rebuilt from source on the next cold start anyway.

	// Watcher
	DefaultWatchDebounceMs = 200 // Debounce for file system change events
)

// FileID identifies one indexed file within a workspace.
// IDs are never reused within a workspace lifetime.
type FileID uint32

// Generation distinguishes successive snapshots of the same file.
// A fragment handle carries the generation it was minted under;
// a mismatch at query time means the snapshot was retracted.
type Generation uint32

// CanonicalName is the normalized lookup key for a definition,
// identical for the plain and the quoted-name contract forms.
type CanonicalName string

// Location is a source position inside one file.
type Location struct {
	URI    string
	Line   int // 1-based
	Column int // 1-based, in bytes
	Offset int // 0-based byte offset
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.URI, l.Line, l.Column)
}

// Definition is one named contract definition.
type Definition struct {
	Name     CanonicalName
	Quoted   bool // declared via the quoted-name form
	Arity    int
	Location Location
}

// Reference is one use site of a canonical name.
type Reference struct {
	Name     CanonicalName
	Location Location
}
