package session

import (
	"context"
	"testing"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/memory"
	"github.com/hupe1980/agentloop/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(store core.TranscriptStore, vars core.VariableStore) *Manager {
	return NewManager(func(o *Options) {
		o.Store = store
		o.Variables = vars
	})
}

func TestManager_PersistThenSeedRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newManager(memory.NewFileTranscriptStore(t.TempDir()), nil)

	history := []core.Turn{
		core.NewTextTurn(core.RoleUser, "book a table"),
		{Role: core.RoleModel, Parts: []core.Part{
			core.TextPart{Text: "checking"},
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "search"}},
		}},
		{Role: core.RoleUser, Parts: []core.Part{
			core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "search", Response: "ok"}},
		}},
		core.NewTextTurn(core.RoleModel, "booked for 8pm"),
	}

	require.NoError(t, m.Persist(ctx, "k", history))

	seeded, err := m.Seed(ctx, "k")
	require.NoError(t, err)

	assert.Equal(t, Flatten(history), Flatten(seeded))
	require.Len(t, seeded, 3)
	assert.Equal(t, core.RoleModel, seeded[1].Role)
	assert.Equal(t, "checking", seeded[1].Text())
	assert.Empty(t, seeded[1].FunctionCalls(), "tool detail is dropped")
}

func TestManager_SeedMapsRoles(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryTranscriptStore()
	require.NoError(t, store.Save(ctx, "k", []core.MemoryRecord{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "model", Content: ""},
	}))

	seeded, err := newManager(store, nil).Seed(ctx, "k")
	require.NoError(t, err)
	require.Len(t, seeded, 2)
	assert.Equal(t, core.RoleModel, seeded[1].Role)
}

func TestManager_NoStoreOrKey(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	seeded, err := m.Seed(ctx, "k")
	assert.NoError(t, err)
	assert.Nil(t, seeded)
	assert.NoError(t, m.Persist(ctx, "k", nil))

	m = newManager(memory.NewInMemoryTranscriptStore(), nil)
	seeded, err = m.Seed(ctx, "")
	assert.NoError(t, err)
	assert.Nil(t, seeded)
}

func TestManager_ExtractFinal(t *testing.T) {
	t.Run("unwraps message field", func(t *testing.T) {
		m := NewManager()
		out := m.ExtractFinal("Sure!\n```json\n{\"message\":\"done\"}\n```", m.BeginCapture(""))
		assert.Equal(t, "done", out)
	})

	t.Run("raw text fallback", func(t *testing.T) {
		m := NewManager()
		assert.Equal(t, "just text", m.ExtractFinal("just text", m.BeginCapture("")))
	})

	t.Run("prefers tool-written value", func(t *testing.T) {
		vars := variables.New(map[string]any{"result": "stale"})
		m := newManager(nil, vars)
		c := m.BeginCapture("result")

		vars.Set("result", map[string]any{"city": "Rome"})

		assert.Equal(t, map[string]any{"city": "Rome"}, m.ExtractFinal("final text", c))
	})

	t.Run("unchanged target falls back to text and stores it", func(t *testing.T) {
		vars := variables.New(map[string]any{"result": "stale"})
		m := newManager(nil, vars)
		c := m.BeginCapture("result")

		assert.Equal(t, "fresh", m.ExtractFinal(`{"answer":"fresh"}`, c))
		v, _ := vars.Get("result")
		assert.Equal(t, "fresh", v)
	})
}
