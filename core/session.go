package core

import (
	"time"
)

// ToolCallTally counts tool executions performed during one session.
type ToolCallTally struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	ByName    map[string]int `json:"by_name"`
}

// Record adds one settled call to the tally.
func (t *ToolCallTally) Record(name string, failed bool) {
	if t.ByName == nil {
		t.ByName = map[string]int{}
	}
	t.Total++
	t.ByName[name]++
	if failed {
		t.Failed++
		return
	}
	t.Succeeded++
}

// Session is the mutable state of a single loop invocation. It is owned
// exclusively by that invocation and is not safe for concurrent use.
type Session struct {
	ID             string
	History        []Turn
	IterationCount int
	StartTime      time.Time
	ToolCallTally  ToolCallTally
	ActiveModelID  string
}

// NewSession creates a session seeded with the given history.
func NewSession(id string, start time.Time, seed []Turn) *Session {
	history := make([]Turn, 0, len(seed)+8)
	history = append(history, seed...)
	return &Session{
		ID:            id,
		History:       history,
		StartTime:     start,
		ToolCallTally: ToolCallTally{ByName: map[string]int{}},
	}
}

// Append adds turns to the end of the history.
func (s *Session) Append(turns ...Turn) {
	s.History = append(s.History, turns...)
}

// LastModelTurn returns the most recent model turn, if any.
func (s *Session) LastModelTurn() (Turn, bool) {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == RoleModel {
			return s.History[i], true
		}
	}
	return Turn{}, false
}

// Elapsed returns the wall-clock time since the session started.
func (s *Session) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartTime)
}

// Snapshot returns a copy of the history safe to hand to callers.
func (s *Session) Snapshot() []Turn {
	out := make([]Turn, len(s.History))
	for i, t := range s.History {
		out[i] = t.Clone()
	}
	return out
}
