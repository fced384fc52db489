package core

import "strings"

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string // Plain UTF-8 text
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// InlineDataPart carries raw binary content (image, audio, pdf, ...) inline
// in the transcript so providers receive the bytes instead of a path.
type InlineDataPart struct {
	MimeType string
	Data     []byte
}

// isPart implements the Part interface for InlineDataPart.
func (InlineDataPart) isPart() {}

// FunctionCall describes a tool/function invocation request.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`   // Provider supplied or synthesized call id
	Name string         `json:"name"`           // Tool / function name
	Args map[string]any `json:"args,omitempty"` // Structured arguments
}

// FunctionCallPart wraps a FunctionCall as a content part.
type FunctionCallPart struct {
	FunctionCall FunctionCall
}

// isPart implements the Part interface for FunctionCallPart.
func (FunctionCallPart) isPart() {}

// FunctionResponse describes the outcome of a function call.
type FunctionResponse struct {
	ID       string `json:"id,omitempty"`       // Matches originating FunctionCall ID
	Name     string `json:"name"`               // Function name
	Response any    `json:"response,omitempty"` // Successful result (any shape)
	Error    string `json:"error,omitempty"`    // Populated on failure
}

// Failed reports whether the response carries an error payload.
func (r FunctionResponse) Failed() bool { return r.Error != "" }

// FunctionResponsePart wraps a FunctionResponse as a content part.
type FunctionResponsePart struct {
	FunctionResponse FunctionResponse
}

// isPart implements the Part interface for FunctionResponsePart.
func (FunctionResponsePart) isPart() {}

// Role tags the author of a Turn.
type Role string

const (
	// RoleUser marks turns authored by the caller or carrying tool results.
	RoleUser Role = "user"
	// RoleModel marks turns produced by a provider.
	RoleModel Role = "model"
)

// Turn holds role + ordered parts.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewTextTurn builds a single text part turn.
func NewTextTurn(role Role, text string) Turn {
	return Turn{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Text concatenates all text parts separated by newlines.
func (t Turn) Text() string {
	var texts []string
	for _, p := range t.Parts {
		if tp, ok := p.(TextPart); ok && tp.Text != "" {
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// FunctionCalls returns the function calls contained in the turn in order.
func (t Turn) FunctionCalls() []FunctionCall {
	var calls []FunctionCall
	for _, p := range t.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// FunctionResponses returns the function responses contained in the turn in order.
func (t Turn) FunctionResponses() []FunctionResponse {
	var responses []FunctionResponse
	for _, p := range t.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			responses = append(responses, fr.FunctionResponse)
		}
	}
	return responses
}

// Clone returns a copy of the turn with its own part slice.
func (t Turn) Clone() Turn {
	parts := make([]Part, len(t.Parts))
	copy(parts, t.Parts)
	return Turn{Role: t.Role, Parts: parts}
}
