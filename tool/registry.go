package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hupe1980/agentloop/core"
)

// ErrDuplicateTool is returned when two declarations share a name.
var ErrDuplicateTool = errors.New("tool: duplicate tool name")

// Registry is an immutable set of tool declarations, built once at startup and
// shared by reference across sessions. When built from Tools it also executes
// them, so it can serve directly as the core.ToolExecutor.
type Registry struct {
	decls []core.ToolDeclaration
	index map[string]int
	tools map[string]Tool
}

var _ core.ToolExecutor = (*Registry)(nil)

// NewRegistry builds a registry from in-process tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	decls := make([]core.ToolDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, t.Declaration())
	}

	r, err := NewDeclarationRegistry(decls...)
	if err != nil {
		return nil, err
	}

	r.tools = make(map[string]Tool, len(tools))
	for _, t := range tools {
		r.tools[t.Declaration().Name] = t
	}
	return r, nil
}

// NewDeclarationRegistry builds a registry from declarations whose
// implementations live behind an external core.ToolExecutor.
func NewDeclarationRegistry(decls ...core.ToolDeclaration) (*Registry, error) {
	r := &Registry{
		decls: make([]core.ToolDeclaration, 0, len(decls)),
		index: make(map[string]int, len(decls)),
	}
	for _, d := range decls {
		if d.Name == "" {
			return nil, errors.New("tool: declaration without name")
		}
		if _, dup := r.index[d.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, d.Name)
		}
		r.index[d.Name] = len(r.decls)
		r.decls = append(r.decls, d)
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error.
func MustRegistry(tools ...Tool) *Registry {
	r, err := NewRegistry(tools...)
	if err != nil {
		panic(err)
	}
	return r
}

// Declarations returns a copy of all declarations in registration order.
func (r *Registry) Declarations() []core.ToolDeclaration {
	if r == nil {
		return nil
	}
	out := make([]core.ToolDeclaration, len(r.decls))
	copy(out, r.decls)
	return out
}

// Lookup returns the declaration registered under name.
func (r *Registry) Lookup(name string) (core.ToolDeclaration, bool) {
	if r == nil {
		return core.ToolDeclaration{}, false
	}
	i, ok := r.index[name]
	if !ok {
		return core.ToolDeclaration{}, false
	}
	return r.decls[i], true
}

// Has reports whether name is declared.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Len returns the number of declarations.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.decls)
}

// Names returns the declared names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.decls))
	for _, d := range r.decls {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the in-process tool registered under name.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	var t Tool
	if r != nil {
		t = r.tools[name]
	}
	if t == nil {
		return nil, NewToolError(name, fmt.Sprintf("tool %q is not available", name), CodeNotFound)
	}
	return t.Call(ctx, args)
}
