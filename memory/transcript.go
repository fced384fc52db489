package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// ErrEmptyKey is returned when a transcript is addressed without a key.
var ErrEmptyKey = errors.New("memory: empty transcript key")

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileTranscriptStore persists one JSON file per memory key holding an array
// of {role, content} records. Writes replace the file atomically.
type FileTranscriptStore struct {
	dir string
	mu  sync.Mutex
}

var _ core.TranscriptStore = (*FileTranscriptStore)(nil)

// NewFileTranscriptStore creates a store rooted at dir. The directory is
// created on first Save.
func NewFileTranscriptStore(dir string) *FileTranscriptStore {
	return &FileTranscriptStore{dir: dir}
}

// Path returns the file backing key.
func (s *FileTranscriptStore) Path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".json")
}

// Load returns the records saved under key; a missing file yields no records.
func (s *FileTranscriptStore) Load(ctx context.Context, key string) ([]core.MemoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrEmptyKey
	}

	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: read transcript %q: %w", key, err)
	}

	var records []core.MemoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("memory: decode transcript %q: %w", key, err)
	}
	return records, nil
}

// Save replaces the transcript stored under key.
func (s *FileTranscriptStore) Save(ctx context.Context, key string, records []core.MemoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}
	if records == nil {
		records = []core.MemoryRecord{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: encode transcript %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("memory: create transcript dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".transcript-*")
	if err != nil {
		return fmt.Errorf("memory: write transcript %q: %w", key, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("memory: write transcript %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("memory: write transcript %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(key)); err != nil {
		return fmt.Errorf("memory: write transcript %q: %w", key, err)
	}
	return nil
}

// sanitizeKey maps key to a file name. Keys that need rewriting get a short
// hash of the raw key appended, so "a/b" and "a_b" stay distinct.
func sanitizeKey(key string) string {
	safe := unsafeKeyChars.ReplaceAllString(key, "_")
	if safe == key && safe != "." && safe != ".." {
		return safe
	}
	sum := sha256.Sum256([]byte(key))
	return safe + "-" + hex.EncodeToString(sum[:4])
}

// InMemoryTranscriptStore keeps transcripts in a process-local map.
type InMemoryTranscriptStore struct {
	mu   sync.RWMutex
	data map[string][]core.MemoryRecord
}

var _ core.TranscriptStore = (*InMemoryTranscriptStore)(nil)

// NewInMemoryTranscriptStore creates an empty store.
func NewInMemoryTranscriptStore() *InMemoryTranscriptStore {
	return &InMemoryTranscriptStore{data: map[string][]core.MemoryRecord{}}
}

// Load returns a copy of the records stored under key.
func (s *InMemoryTranscriptStore) Load(_ context.Context, key string) ([]core.MemoryRecord, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.data[key]), nil
}

// Save replaces the records stored under key.
func (s *InMemoryTranscriptStore) Save(_ context.Context, key string, records []core.MemoryRecord) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = slices.Clone(records)
	return nil
}
