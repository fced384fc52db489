package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentloop/core"
)

// Names of the variable tools.
const (
	GetVariableToolName = "get_variable"
	SetVariableToolName = "set_variable"
)

// NewGetVariableTool exposes VariableStore.ResolveValue to models. Dot paths
// such as "user.name" are accepted.
func NewGetVariableTool(store core.VariableStore) *FunctionTool {
	return NewFunctionTool(
		GetVariableToolName,
		"Read a variable by name or dot path.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Variable name or dot path",
				},
			},
			"required": []string{"name"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			name, _ := args["name"].(string)

			value, exists := store.ResolveValue(name)

			return map[string]any{
				"name":   name,
				"exists": exists,
				"value":  value,
			}, nil
		},
	)
}

// NewSetVariableTool exposes VariableStore.Set to models. Writing the
// configured output target through this tool captures the run's output.
func NewSetVariableTool(store core.VariableStore) *FunctionTool {
	return NewFunctionTool(
		SetVariableToolName,
		"Store a value in a named variable.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Variable name",
				},
				"value": map[string]any{
					"description": "Value to store (any type)",
				},
			},
			"required": []string{"name", "value"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			name, _ := args["name"].(string)
			if name == "" {
				return nil, NewToolError(SetVariableToolName, "name must not be empty", CodeValidation)
			}

			store.Set(name, args["value"])

			return map[string]any{
				"name":    name,
				"success": true,
				"message": fmt.Sprintf("Variable '%s' set successfully", name),
			}, nil
		},
	)
}
