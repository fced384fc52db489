package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/agentloop/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTranscriptStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileTranscriptStore(filepath.Join(t.TempDir(), "nested"))

	records := []core.MemoryRecord{
		{Role: "user", Content: "hello"},
		{Role: "model", Content: "hi there"},
	}
	require.NoError(t, store.Save(ctx, "user/42", records))

	assert.Regexp(t, `^user_42-[0-9a-f]{8}\.json$`, filepath.Base(store.Path("user/42")))

	raw, err := os.ReadFile(store.Path("user/42"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"content": "hello"`)

	loaded, err := store.Load(ctx, "user/42")
	require.NoError(t, err)
	assert.Equal(t, records, loaded)
}

func TestFileTranscriptStore_DistinctKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileTranscriptStore(dir)

	assert.Equal(t, "plain-key_1.json", filepath.Base(store.Path("plain-key_1")))
	assert.NotEqual(t, store.Path("a/b"), store.Path("a_b"))
	assert.NotEqual(t, store.Path("a/b"), store.Path("a:b"))
	assert.Equal(t, dir, filepath.Dir(store.Path("..")))

	require.NoError(t, store.Save(ctx, "a/b", []core.MemoryRecord{{Role: "user", Content: "slash"}}))
	require.NoError(t, store.Save(ctx, "a_b", []core.MemoryRecord{{Role: "user", Content: "underscore"}}))

	slash, err := store.Load(ctx, "a/b")
	require.NoError(t, err)
	underscore, err := store.Load(ctx, "a_b")
	require.NoError(t, err)
	assert.Equal(t, "slash", slash[0].Content)
	assert.Equal(t, "underscore", underscore[0].Content)
}

func TestFileTranscriptStore_MissingKey(t *testing.T) {
	store := NewFileTranscriptStore(t.TempDir())

	loaded, err := store.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, loaded)

	_, err = store.Load(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestFileTranscriptStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	store := NewFileTranscriptStore(dir)
	require.NoError(t, os.WriteFile(store.Path("bad"), []byte("{not json"), 0o600))

	_, err := store.Load(context.Background(), "bad")
	assert.Error(t, err)
}

func TestInMemoryTranscriptStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryTranscriptStore()

	records := []core.MemoryRecord{{Role: "user", Content: "a"}}
	require.NoError(t, store.Save(ctx, "k", records))
	records[0].Content = "mutated"

	loaded, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "a", loaded[0].Content)

	assert.ErrorIs(t, store.Save(ctx, "", nil), ErrEmptyKey)
}
