// Package variables provides an in-memory core.VariableStore.
package variables

import (
	"maps"
	"sync"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
)

// Store is a process-local variable store protected by an RWMutex. Tools
// running in one batch may write to it concurrently.
type Store struct {
	mu   sync.RWMutex
	vars map[string]any
}

var _ core.VariableStore = (*Store)(nil)

// New creates a store seeded with a copy of initial.
func New(initial map[string]any) *Store {
	vars := make(map[string]any, len(initial))
	maps.Copy(vars, initial)
	return &Store{vars: vars}
}

// Get returns the top-level variable name.
func (s *Store) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Set binds name to value, replacing any previous binding.
func (s *Store) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value
}

// ResolveString substitutes {{name}} and {{a.b}} placeholders. Unknown
// variables resolve to the empty string.
func (s *Store) ResolveString(template string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return util.Substitute(template, func(path string) (any, bool) {
		return util.LookupPath(s.vars, path)
	})
}

// ResolveValue looks up a dot separated path.
func (s *Store) ResolveValue(path string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return util.LookupPath(s.vars, path)
}

// Snapshot returns a shallow copy of all variables.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.vars)
}
