package core

import "context"

// MemoryStore is the long-term semantic memory boundary. Implementations can
// back search with embeddings, keywords or any heuristic.
type MemoryStore interface {
	Search(ctx context.Context, query string, limit int, threshold float64) ([]SearchResult, error)
	Add(ctx context.Context, text string, metadata map[string]any) error
}

// MemoryRecord is one flattened transcript entry persisted across sessions.
type MemoryRecord struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TranscriptStore persists flattened transcripts keyed by a caller supplied
// memory key. Loading an unknown key returns an empty slice, not an error.
type TranscriptStore interface {
	Load(ctx context.Context, key string) ([]MemoryRecord, error)
	Save(ctx context.Context, key string, records []MemoryRecord) error
}
