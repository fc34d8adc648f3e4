package core

import (
	"sync"

	"github.com/wardlang/wci/internal/types"
)

// Arena owns snapshot identities. Each file has one live generation at a
// time; fragments carry the generation they were minted under, and a
// mismatch at query time means the fragment outlived its snapshot.
type Arena struct {
	mu      sync.RWMutex
	gens    map[types.FileID]types.Generation
	values  map[types.FileID]interface{}
	nextID  types.FileID
	idByURI map[string]types.FileID
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		gens:    make(map[types.FileID]types.Generation),
		values:  make(map[types.FileID]interface{}),
		idByURI: make(map[string]types.FileID),
	}
}

// FileID returns the stable identity for a uri, allocating one on first
// use. Identities are never reused within an arena's lifetime.
func (a *Arena) FileID(uri string) types.FileID {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id, ok := a.idByURI[uri]; ok {
		return id
	}
	a.nextID++
	a.idByURI[uri] = a.nextID
	return a.nextID
}

// Put installs a new value for a file and advances its generation,
// invalidating every handle minted under the previous one.
func (a *Arena) Put(id types.FileID, v interface{}) types.Generation {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gens[id]++
	a.values[id] = v
	return a.gens[id]
}

// Get returns the value for a handle if the generation is still live.
func (a *Arena) Get(id types.FileID, gen types.Generation) (interface{}, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.gens[id] != gen {
		return nil, false
	}
	v, ok := a.values[id]
	return v, ok
}

// Live reports whether a handle's generation is still current.
func (a *Arena) Live(id types.FileID, gen types.Generation) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	current, ok := a.gens[id]
	return ok && current == gen && a.values[id] != nil
}

// Drop destroys the value for a file. The generation counter survives so a
// stale handle can never match a later Put.
func (a *Arena) Drop(id types.FileID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.values[id]; ok {
		a.gens[id]++
		delete(a.values, id)
	}
}
