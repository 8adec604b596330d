// Package extid is the process-wide extension-id registry of spec.md
// §5/§9: "process-wide state is limited to an extension registry
// assigning a stable id to each frontend extension kind at
// initialization." Grounded on
// original_source/src/frontends/lean/frontend.cpp's
// lean_extension_initializer, whose static constructor calls
// environment_cell::register_extension once per process and stores the
// resulting id (g_lean_extension_initializer.m_extid) for every later
// to_ext lookup. Register plays that role here: a package-level
// variable initialized once, typically via sync.Once or a package
// init(), registers its extension kind and keeps the returned ID for
// its own later Store lookups.
package extid

import (
	"sync"

	"github.com/google/uuid"
)

// ID names one registered extension kind, stable for the life of the
// process. Unlike the original's small unsigned index into a vector,
// this core has no shared process-wide extension vector to index into,
// so a uuid.New()-derived string plays the same "stable handle" role
// without needing a central table of kinds to size it ahead of time.
type ID string

// Factory builds the zero value of an extension kind, invoked the first
// time a Store is asked for an id it has not seen yet.
type Factory func() interface{}

var (
	registryMu sync.Mutex
	kindIDs    = map[string]ID{}
	factories  = map[ID]Factory{}
)

// Register assigns kind a stable ID, calling factory to build a fresh
// extension value on demand thereafter. Registering the same kind name
// twice returns the previously assigned ID instead of minting a new
// one, matching the original's static-initializer-runs-once semantics
// without requiring callers to guard it with their own sync.Once.
func Register(kind string, factory Factory) ID {
	registryMu.Lock()
	defer registryMu.Unlock()

	if id, ok := kindIDs[kind]; ok {
		return id
	}

	id := ID(uuid.New().String())
	kindIDs[kind] = id
	factories[id] = factory

	return id
}

// New builds a fresh extension value for id via its registered factory,
// or returns nil if id was never registered.
func New(id ID) interface{} {
	registryMu.Lock()
	f, ok := factories[id]
	registryMu.Unlock()

	if !ok {
		return nil
	}

	return f()
}

// Store holds one extension value per ID for a single extensible
// object (an environment, a frontend), mirroring environment_cell's
// per-environment extension vector, keyed here by ID rather than a
// dense index since IDs are not assigned in vector-slot order.
type Store struct {
	mu   sync.RWMutex
	data map[ID]interface{}
}

// NewStore allocates an empty extension store.
func NewStore() *Store {
	return &Store{data: map[ID]interface{}{}}
}

// Get returns the value stored locally for id, if any. It does not
// consult a factory or any parent store; callers that want the
// lean_extension get_parent() fallback chain build it themselves out of
// Get, the way notation.Environment.Extension does.
func (s *Store) Get(id ID) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[id]

	return v, ok
}

// Set stores v under id, overwriting any previous value.
func (s *Store) Set(id ID, v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[id] = v
}

// GetOrCreate returns the value stored under id, building and storing
// one via id's factory the first time it's asked for.
func (s *Store) GetOrCreate(id ID) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.data[id]; ok {
		return v
	}

	v := New(id)
	s.data[id] = v

	return v
}

// GetTyped is Get with the result already asserted to T, returning
// ok=false (rather than panicking) on a type mismatch or missing entry.
func GetTyped[T any](s *Store, id ID) (T, bool) {
	v, ok := s.Get(id)
	if !ok {
		var zero T
		return zero, false
	}

	t, ok := v.(T)

	return t, ok
}
