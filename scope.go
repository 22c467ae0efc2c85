package archmod

import (
	"fmt"
	"iter"
	"slices"
	"sync"
)

// Conventional loader names for analysis scopes.
const (
	LoaderPrimordial  = "Primordial"
	LoaderExtension   = "Extension"
	LoaderApplication = "Application"
)

// Scope groups modules by class loader for an analysis.
//
// A module location appears at most once across the whole scope, so adding
// the same archive twice (even through different handles) is a no-op.
// Scope is safe for concurrent use.
type Scope struct {
	mu      sync.RWMutex
	loaders map[string][]*Module
	owners  map[string]string // module key -> loader
}

// NewScope returns an empty scope.
func NewScope() *Scope {
	return &Scope{
		loaders: make(map[string][]*Module),
		owners:  make(map[string]string),
	}
}

// Add places m under loader.
// It returns false if a module equal to m is already in the scope.
func (s *Scope) Add(loader string, m *Module) (bool, error) {
	if loader == "" {
		return false, fmt.Errorf("%w: loader is empty", ErrInvalidArgument)
	}
	if m == nil {
		return false, fmt.Errorf("%w: module is nil", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[m.Key()]; ok {
		return false, nil
	}
	s.owners[m.Key()] = loader
	s.loaders[loader] = append(s.loaders[loader], m)
	return true, nil
}

// Modules returns the modules under loader in insertion order.
func (s *Scope) Modules(loader string) []*Module {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.loaders[loader])
}

// Loaders returns the loader names that hold at least one module, sorted.
func (s *Scope) Loaders() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.loaders))
	for name := range s.loaders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup finds the module at location and the loader holding it.
func (s *Scope) Lookup(location string) (*Module, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loader, ok := s.owners[location]
	if !ok {
		return nil, "", false
	}
	for _, m := range s.loaders[loader] {
		if m.Key() == location {
			return m, loader, true
		}
	}
	return nil, "", false
}

// Len returns the number of modules in the scope.
func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.owners)
}

// Entries enumerates the entries of every module, loader by loader in
// sorted order and modules in insertion order.
func (s *Scope) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, loader := range s.Loaders() {
			for _, m := range s.Modules(loader) {
				for e := range m.Entries() {
					if !yield(e) {
						return
					}
				}
			}
		}
	}
}
