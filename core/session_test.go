package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSession_AppendAndSnapshot(t *testing.T) {
	start := time.Now()
	s := NewSession("s1", start, []Turn{NewTextTurn(RoleUser, "earlier")})

	s.Append(NewTextTurn(RoleModel, "reply"))
	assert.Len(t, s.History, 2)

	snap := s.Snapshot()
	snap[0].Parts[0] = TextPart{Text: "changed"}
	assert.Equal(t, "earlier", s.History[0].Text(), "snapshot must not alias history parts")

	last, ok := s.LastModelTurn()
	assert.True(t, ok)
	assert.Equal(t, "reply", last.Text())
	assert.Equal(t, 2*time.Second, s.Elapsed(start.Add(2*time.Second)))
}

func TestToolCallTally_Record(t *testing.T) {
	var tally ToolCallTally
	tally.Record("a", false)
	tally.Record("a", true)
	tally.Record("b", false)

	assert.Equal(t, 3, tally.Total)
	assert.Equal(t, 2, tally.Succeeded)
	assert.Equal(t, 1, tally.Failed)
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, tally.ByName)
}

func TestTurn_Accessors(t *testing.T) {
	turn := Turn{Role: RoleModel, Parts: []Part{
		TextPart{Text: "first"},
		FunctionCallPart{FunctionCall: FunctionCall{ID: "1", Name: "lookup"}},
		TextPart{Text: "second"},
	}}

	assert.Equal(t, "first\nsecond", turn.Text())
	calls := turn.FunctionCalls()
	if assert.Len(t, calls, 1) {
		assert.Equal(t, "lookup", calls[0].Name)
	}
	assert.Empty(t, turn.FunctionResponses())
}

func TestMapSettings_EmptyValueIsMissing(t *testing.T) {
	s := MapSettings{"A": "x", "B": ""}
	v, ok := s.Lookup("A")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	_, ok = s.Lookup("B")
	assert.False(t, ok)
}
