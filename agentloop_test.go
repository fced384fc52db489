package agentloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/flow"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
	"github.com/hupe1980/agentloop/variables"
)

func TestDefaultFactory(t *testing.T) {
	assert.Equal(t, []string{"anthropic", "gemini", "openai"}, DefaultFactory().Names())
}

func TestNew_DuplicateTools(t *testing.T) {
	get := tool.NewFunctionTool("t", "", nil, func(context.Context, map[string]any) (any, error) { return nil, nil })
	_, err := New(func(o *Options) { o.Tools = []tool.Tool{get, get} })
	assert.ErrorIs(t, err, tool.ErrDuplicateTool)
}

func TestRun_WithScriptedProvider(t *testing.T) {
	p := model.NewScriptedProvider("scripted",
		model.CallStep(core.FunctionCall{ID: "c1", Name: tool.SetVariableToolName, Args: map[string]any{"name": "greeting", "value": "hi"}}),
		model.TextStep("All set."),
	)

	vars := variables.New(nil)
	loop, err := New(func(o *Options) {
		o.Provider = p
		o.Variables = vars
		o.Tools = []tool.Tool{tool.NewSetVariableTool(vars)}
		o.TranscriptDir = t.TempDir()
		o.Config.MemoryKey = "demo"
	})
	require.NoError(t, err)
	assert.True(t, loop.Registry().Has(tool.SetVariableToolName))

	res, err := loop.Run(context.Background(), "store a greeting")
	require.NoError(t, err)
	assert.Equal(t, flow.StatusSuccess, res.Status)
	assert.Equal(t, "All set.", res.Text)

	v, ok := loop.Variables().Get("greeting")
	assert.True(t, ok)
	assert.Equal(t, "hi", v)
}

func TestRun_MissingCredential(t *testing.T) {
	loop, err := New(func(o *Options) {
		o.Settings = core.MapSettings{}
		o.Config.Provider = "anthropic"
	})
	require.NoError(t, err)

	res, err := loop.Run(context.Background(), "hello")
	assert.ErrorIs(t, err, model.ErrMissingCredential)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
	assert.Equal(t, flow.StatusFailed, res.Status)
}
