package variables

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStore_GetSet(t *testing.T) {
	s := New(map[string]any{"a": 1})

	v, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	s.Set("b", "two")
	v, ok = s.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "two", v)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestStore_Resolve(t *testing.T) {
	s := New(map[string]any{
		"user": map[string]any{"name": "Ada"},
		"city": "Paris",
	})

	assert.Equal(t, "Ada lives in Paris", s.ResolveString("{{user.name}} lives in {{city}}"))
	assert.Equal(t, "   ", s.ResolveString(" {{empty}} {{ignored}} "))

	v, ok := s.ResolveValue("user.name")
	assert.True(t, ok)
	assert.Equal(t, "Ada", v)
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := New(nil)
	s.Set("k", "v")

	snap := s.Snapshot()
	snap["k"] = "changed"

	v, _ := s.Get("k")
	assert.Equal(t, "v", v)
}

func TestStore_ConcurrentWrites(t *testing.T) {
	s := New(nil)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Set(fmt.Sprintf("k%d", i), i)
			_ = s.ResolveString("{{k0}}")
		}()
	}
	wg.Wait()

	assert.Len(t, s.Snapshot(), 50)
}
