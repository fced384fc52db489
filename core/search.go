package core

// SearchResult represents a retrieved memory item with a similarity score and arbitrary metadata.
type SearchResult struct {
	Text       string
	Similarity float64
	Metadata   map[string]any
}
