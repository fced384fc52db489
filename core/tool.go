package core

import "context"

// ToolDeclaration exposes a callable tool to providers. Declarations are
// immutable once registered.
type ToolDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// ToolExecutor is the boundary to application-implemented tools. Execute
// must be safe for concurrent use; a returned error is reported back to the
// model as the call's error payload.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) (any, error)
}

// ToolExecutorFunc adapts a plain function to ToolExecutor.
type ToolExecutorFunc func(ctx context.Context, name string, args map[string]any) (any, error)

// Execute implements ToolExecutor.
func (f ToolExecutorFunc) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	return f(ctx, name, args)
}
