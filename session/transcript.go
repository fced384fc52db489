package session

import (
	"context"
	"reflect"
	"strings"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/logging"
)

// Options configures a Manager.
type Options struct {
	// Store persists transcripts. Seed and Persist are no-ops without one.
	Store core.TranscriptStore
	// Variables backs output capture; may be nil.
	Variables core.VariableStore
	Logger    logging.Logger
}

// Manager seeds, persists and extracts conversation transcripts.
type Manager struct {
	store  core.TranscriptStore
	vars   core.VariableStore
	logger logging.Logger
}

// NewManager creates a transcript manager.
func NewManager(optFns ...func(o *Options)) *Manager {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{store: opts.Store, vars: opts.Variables, logger: opts.Logger}
}

// Seed replays the transcript stored under key as text turns, one per record.
// Records with empty content are skipped.
func (m *Manager) Seed(ctx context.Context, key string) ([]core.Turn, error) {
	if m.store == nil || key == "" {
		return nil, nil
	}

	records, err := m.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	turns := make([]core.Turn, 0, len(records))
	for _, r := range records {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		turns = append(turns, core.NewTextTurn(roleFromRecord(r.Role), r.Content))
	}

	m.logger.Debug("session.seeded", "memory_key", key, "turns", len(turns))
	return turns, nil
}

// Persist saves the flattened role/text form of history under key.
func (m *Manager) Persist(ctx context.Context, key string, history []core.Turn) error {
	if m.store == nil || key == "" {
		return nil
	}

	records := Flatten(history)
	if err := m.store.Save(ctx, key, records); err != nil {
		return err
	}

	m.logger.Debug("session.persisted", "memory_key", key, "records", len(records))
	return nil
}

// Flatten keeps role plus joined text per turn, dropping turns without text.
func Flatten(history []core.Turn) []core.MemoryRecord {
	records := make([]core.MemoryRecord, 0, len(history))
	for _, t := range history {
		text := t.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		records = append(records, core.MemoryRecord{Role: string(t.Role), Content: text})
	}
	return records
}

func roleFromRecord(role string) core.Role {
	switch strings.ToLower(role) {
	case "model", "assistant":
		return core.RoleModel
	default:
		return core.RoleUser
	}
}

// Capture remembers the value of an output target before a run, so a value
// written by a tool during the run can be told apart from a stale one.
type Capture struct {
	Target  string
	before  any
	existed bool
}

// BeginCapture snapshots target. An empty target disables capture.
func (m *Manager) BeginCapture(target string) Capture {
	c := Capture{Target: target}
	if target != "" && m.vars != nil {
		c.before, c.existed = m.vars.Get(target)
	}
	return c
}

// Written returns the value a tool stored in the target during the run.
func (m *Manager) Written(c Capture) (any, bool) {
	if c.Target == "" || m.vars == nil {
		return nil, false
	}
	v, ok := m.vars.Get(c.Target)
	if !ok || v == nil {
		return nil, false
	}
	if c.existed && reflect.DeepEqual(v, c.before) {
		return nil, false
	}
	return v, true
}

// ExtractFinal returns the run output. A value written to the capture target
// during the run wins; otherwise text is parsed for an embedded structured
// object and unwrapped to a message-like field. When capture is enabled the
// result is stored in the target.
func (m *Manager) ExtractFinal(text string, c Capture) any {
	if v, ok := m.Written(c); ok {
		m.logger.Debug("session.output.captured", "target", c.Target)
		return v
	}

	out := util.ExtractOutput(text)
	if c.Target != "" && m.vars != nil {
		m.vars.Set(c.Target, out)
	}
	return out
}
