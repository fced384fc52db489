package memory

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/hupe1980/agentloop/core"
)

// StoredMemory is the internal representation persisted by InMemoryStore.
type StoredMemory struct {
	ID       string
	Text     string
	Metadata map[string]any

	terms map[string]float64
}

// InMemoryStore is a naive process-local core.MemoryStore.
//
// Search ranks stored texts by cosine similarity of lower-cased term counts.
// Suitable for tests and demos; swap for an embedding index in production.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []StoredMemory
}

var _ core.MemoryStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates a new in-memory memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Search returns up to limit entries whose similarity to query is at least
// threshold, best match first.
func (m *InMemoryStore) Search(ctx context.Context, query string, limit int, threshold float64) ([]core.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := termVector(query)

	m.mu.RLock()
	results := make([]core.SearchResult, 0, len(m.entries))
	for _, e := range m.entries {
		score := cosine(q, e.terms)
		if score < threshold || score == 0 {
			continue
		}
		results = append(results, core.SearchResult{
			Text:       e.Text,
			Similarity: score,
			Metadata:   maps.Clone(e.Metadata),
		})
	}
	m.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Add appends a memory with a simple incremental id.
func (m *InMemoryStore) Add(ctx context.Context, text string, metadata map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, StoredMemory{
		ID:       fmt.Sprintf("mem_%d", len(m.entries)),
		Text:     text,
		Metadata: maps.Clone(metadata),
		terms:    termVector(text),
	})
	return nil
}

// Len returns the number of stored memories.
func (m *InMemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func termVector(text string) map[string]float64 {
	terms := map[string]float64{}
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		terms[f]++
	}
	return terms
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for k, v := range a {
		dot += v * b[k]
		na += v * v
	}
	for _, v := range b {
		nb += v * v
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
