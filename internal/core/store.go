package core

import (
	"sync"

	"github.com/wardlang/wci/internal/types"
)

// trieNode is one prefix tree node. Children are keyed by the next canonical
// token; fragments whose sequence ends here sit in leaves.
type trieNode struct {
	parent   *trieNode
	edge     Token
	children map[Token]*trieNode
	leaves   []Fragment
}

func newTrieNode(parent *trieNode, edge Token) *trieNode {
	return &trieNode{parent: parent, edge: edge}
}

func (n *trieNode) empty() bool {
	return len(n.leaves) == 0 && len(n.children) == 0
}

// Match is one query result: the matched fragment's payload plus the
// variable bindings that made the pattern unify.
type Match struct {
	Payload  types.Location
	Bindings Bindings
	Owner    types.FileID
	Gen      types.Generation
}

// PatternStore is the prefix-sharing structural index. It is a multi-map:
// one token-sequence path may hold many fragments from many files.
//
// Mutations are serialized by a single writer lock; queries run under the
// read lock against a consistent view and copy their results out, so no
// caller ever observes a half-applied insert or retraction.
type PatternStore struct {
	mu     sync.RWMutex
	root   *trieNode
	byFile map[types.FileID][]*trieNode
	count  int
	arena  *Arena // optional: rejects fragments from retracted generations
}

// NewPatternStore creates an empty store.
func NewPatternStore() *PatternStore {
	return &PatternStore{
		root:   newTrieNode(nil, Token{}),
		byFile: make(map[types.FileID][]*trieNode),
	}
}

// NewPatternStoreWithArena creates a store whose queries drop fragments
// that no longer match the arena's live generation for their owner.
func NewPatternStoreWithArena(arena *Arena) *PatternStore {
	ps := NewPatternStore()
	ps.arena = arena
	return ps
}

// Insert adds fragments for one file. Callers retract the file's previous
// fragments first; Insert itself never deduplicates across generations.
func (ps *PatternStore) Insert(frags []Fragment) {
	if len(frags) == 0 {
		return
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, frag := range frags {
		node := ps.root
		for _, tok := range frag.Tokens {
			child, ok := node.children[tok]
			if !ok {
				if node.children == nil {
					node.children = make(map[Token]*trieNode)
				}
				child = newTrieNode(node, tok)
				node.children[tok] = child
			}
			node = child
		}
		node.leaves = append(node.leaves, frag)
		ps.byFile[frag.Owner] = append(ps.byFile[frag.Owner], node)
		ps.count++
	}
}

// Retract removes every fragment owned by fileID and collapses internal
// nodes left empty. Fragments from other files on shared prefixes are
// untouched.
func (ps *PatternStore) Retract(fileID types.FileID) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	terminals := ps.byFile[fileID]
	if len(terminals) == 0 {
		return
	}
	delete(ps.byFile, fileID)

	seen := make(map[*trieNode]bool, len(terminals))
	for _, node := range terminals {
		if seen[node] {
			continue
		}
		seen[node] = true

		kept := node.leaves[:0]
		for _, leaf := range node.leaves {
			if leaf.Owner == fileID {
				ps.count--
			} else {
				kept = append(kept, leaf)
			}
		}
		node.leaves = kept
		ps.collapse(node)
	}
}

func (ps *PatternStore) collapse(node *trieNode) {
	for node != nil && node.parent != nil && node.empty() {
		parent := node.parent
		delete(parent.children, node.edge)
		node = parent
	}
}

// Query matches a compiled pattern against the store. It descends the trie
// along the pattern's concrete prefix first, then unifies only within the
// candidate subtree, so cost tracks the number of fragments sharing that
// prefix rather than the store size.
func (ps *PatternStore) Query(pattern []Token) ([]Match, error) {
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}

	ps.mu.RLock()
	defer ps.mu.RUnlock()

	// Concrete-prefix descent. The first variable stops the walk; from
	// there every fragment below is a unification candidate.
	node := ps.root
	for _, tok := range pattern {
		if tok.Kind == TokenVar {
			break
		}
		child, ok := node.children[tok]
		if !ok {
			return nil, nil
		}
		node = child
	}

	var out []Match
	ps.walkLeaves(node, func(frag Fragment) {
		if ps.arena != nil && !ps.arena.Live(frag.Owner, frag.Gen) {
			return
		}
		if bindings, ok := Unify(pattern, frag.Tokens); ok {
			out = append(out, Match{
				Payload:  frag.Payload,
				Bindings: bindings,
				Owner:    frag.Owner,
				Gen:      frag.Gen,
			})
		}
	})
	return out, nil
}

// QueryText compiles a textual invocation pattern and queries the store.
func (ps *PatternStore) QueryText(pattern string) ([]Match, error) {
	tokens, err := ParsePattern(pattern)
	if err != nil {
		return nil, err
	}
	return ps.Query(tokens)
}

func (ps *PatternStore) walkLeaves(node *trieNode, visit func(Fragment)) {
	for _, leaf := range node.leaves {
		visit(leaf)
	}
	for _, child := range node.children {
		ps.walkLeaves(child, visit)
	}
}

// ForEach visits every stored fragment. Used by tests as a linear-scan
// correctness backstop against the prefix descent.
func (ps *PatternStore) ForEach(visit func(Fragment)) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	ps.walkLeaves(ps.root, visit)
}

// candidateCount reports how many fragments the concrete-prefix descent
// narrows a pattern down to, before unification runs. This is the quantity
// the sub-linear performance contract is stated in terms of.
func (ps *PatternStore) candidateCount(pattern []Token) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	node := ps.root
	for _, tok := range pattern {
		if tok.Kind == TokenVar {
			break
		}
		child, ok := node.children[tok]
		if !ok {
			return 0
		}
		node = child
	}
	n := 0
	ps.walkLeaves(node, func(Fragment) { n++ })
	return n
}

// Len returns the number of stored fragments.
func (ps *PatternStore) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.count
}

// FileCount returns the number of files with at least one stored fragment.
func (ps *PatternStore) FileCount() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.byFile)
}
