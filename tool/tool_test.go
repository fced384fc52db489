package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------- FunctionTool Tests --------------------

func sumTool() *FunctionTool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	return NewFunctionTool("sum", "Add numbers", params, func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
}

func TestFunctionTool_Success(t *testing.T) {
	result, err := sumTool().Call(context.Background(), map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	_, err := sumTool().Call(context.Background(), map[string]any{"a": 1.0})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ context.Context, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	_, err := execTool.Call(context.Background(), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

func TestFunctionTool_PreservesToolError(t *testing.T) {
	custom := NewFunctionTool("custom", "", nil, func(_ context.Context, _ map[string]any) (any, error) {
		return nil, NewToolError("custom", "denied", "FORBIDDEN")
	})

	_, err := custom.Call(context.Background(), nil)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "FORBIDDEN", toolErr.Code)
}

func TestNewFunctionToolFromStruct(t *testing.T) {
	type args struct {
		City string `json:"city" description:"City name"`
	}
	ft := NewFunctionToolFromStruct("weather", "Weather lookup", args{}, func(_ context.Context, a map[string]any) (any, error) {
		return "sunny in " + a["city"].(string), nil
	})

	decl := ft.Declaration()
	assert.Equal(t, "weather", decl.Name)
	assert.Contains(t, decl.Parameters["properties"], "city")

	out, err := ft.Call(context.Background(), map[string]any{"city": "Rome"})
	require.NoError(t, err)
	assert.Equal(t, "sunny in Rome", out)
}

// -------------------- Registry Tests --------------------

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(sumTool(), NewGetVariableTool(variables.New(nil)))
	require.NoError(t, err)

	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Has("sum"))
	assert.False(t, r.Has("nope"))
	assert.Equal(t, []string{GetVariableToolName, "sum"}, r.Names())

	decl, ok := r.Lookup("sum")
	require.True(t, ok)
	assert.Equal(t, "Add numbers", decl.Description)

	decls := r.Declarations()
	decls[0].Name = "mutated"
	assert.True(t, r.Has("sum"), "declarations must be returned as a copy")

	out, err := r.Execute(context.Background(), "sum", map[string]any{"a": 1.0, "b": 1.0})
	require.NoError(t, err)
	assert.Equal(t, 2.0, out)
}

func TestRegistry_Duplicate(t *testing.T) {
	_, err := NewRegistry(sumTool(), sumTool())
	assert.ErrorIs(t, err, ErrDuplicateTool)

	_, err = NewDeclarationRegistry(core.ToolDeclaration{})
	assert.Error(t, err)
}

func TestRegistry_ExecuteUnknown(t *testing.T) {
	r, err := NewDeclarationRegistry(core.ToolDeclaration{Name: "external"})
	require.NoError(t, err)

	_, err = r.Execute(context.Background(), "external", nil)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeNotFound, toolErr.Code)
}

func TestNilRegistry(t *testing.T) {
	var r *Registry
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Declarations())
	assert.False(t, r.Has("x"))
}

// -------------------- Variable Tools --------------------

func TestVariableTools(t *testing.T) {
	store := variables.New(map[string]any{"user": map[string]any{"name": "Ada"}})
	get := NewGetVariableTool(store)
	set := NewSetVariableTool(store)

	res, err := set.Call(context.Background(), map[string]any{"name": "answer", "value": 42.0})
	require.NoError(t, err)
	assert.True(t, res.(map[string]any)["success"].(bool))

	v, ok := store.Get("answer")
	assert.True(t, ok)
	assert.Equal(t, 42.0, v)

	res, err = get.Call(context.Background(), map[string]any{"name": "user.name"})
	require.NoError(t, err)
	m := res.(map[string]any)
	assert.True(t, m["exists"].(bool))
	assert.Equal(t, "Ada", m["value"])

	_, err = set.Call(context.Background(), map[string]any{"name": "", "value": 1})
	assert.Error(t, err)
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")

	wrapped := AsToolError("demo", errors.New("x"), CodeExecution)
	assert.Equal(t, CodeExecution, wrapped.Code)
	assert.Same(t, err, AsToolError("demo", err, CodeExecution))
}
