// Package indexing owns the workspace index: the uri to snapshot map, the
// canonical-name map, and one pattern store, plus the re-index, retraction
// and validation logic that keeps the three consistent.
package indexing

import (
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/wardlang/wci/internal/core"
	"github.com/wardlang/wci/internal/parser"
	"github.com/wardlang/wci/internal/symbols"
	"github.com/wardlang/wci/internal/types"
	"github.com/wardlang/wci/pkg/pathutil"
)

// Snapshot is the immutable cached parse state of one file at a point in
// time. A snapshot is replaced, never mutated: any change to the file's
// text produces a new snapshot under a new generation.
type Snapshot struct {
	URI         string
	Path        string // filesystem path, "" for virtual documents
	FileID      types.FileID
	Gen         types.Generation
	ContentHash uint64 // xxhash64 of the source bytes
	ModTime     time.Time
	Size        int64

	Tree      *parser.Tree
	Symbols   *symbols.Table
	Fragments []core.Fragment

	// Reconstructible marks a snapshot loaded from disk whose Tree and
	// Symbols were omitted from the persisted form. They are rebuilt
	// lazily, exactly once, by re-reading and re-parsing the file.
	Reconstructible bool

	Diagnostics []parser.Diagnostic
}

// HashBytes computes the content hash used for snapshot validation.
func HashBytes(content []byte) uint64 {
	return xxhash.Sum64(content)
}

// NewSnapshot parses text and builds a complete snapshot. modTime and size
// describe the on-disk state backing the text; pass the zero time for
// virtual documents.
func NewSnapshot(uri string, fileID types.FileID, gen types.Generation, text string, modTime time.Time, size int64) *Snapshot {
	tree, diags := parser.Parse(text)
	table := symbols.Build(uri, tree)
	frags := core.Extract(uri, fileID, gen, tree)

	// Virtual documents (non-file schemes) have no backing path.
	path := ""
	if strings.HasPrefix(uri, "file://") {
		path = pathutil.ToPath(uri)
	}

	return &Snapshot{
		URI:         uri,
		Path:        path,
		FileID:      fileID,
		Gen:         gen,
		ContentHash: HashBytes([]byte(text)),
		ModTime:     modTime,
		Size:        size,
		Tree:        tree,
		Symbols:     table,
		Fragments:   frags,
		Diagnostics: diags,
	}
}

// Reconstruct rebuilds the omitted fields of a persisted snapshot from
// source text, keeping identity, hash and timestamps intact. The returned
// snapshot is a new value; the receiver stays untouched.
func (s *Snapshot) Reconstruct(text string) *Snapshot {
	tree, diags := parser.Parse(text)
	table := symbols.Build(s.URI, tree)
	frags := core.Extract(s.URI, s.FileID, s.Gen, tree)

	out := *s
	out.Tree = tree
	out.Symbols = table
	out.Fragments = frags
	out.Reconstructible = false
	out.Diagnostics = diags
	return &out
}
