package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// Request captures the normalized provider input produced by the loop.
type Request struct {
	Model             string                 // Empty selects the adapter default
	SystemInstruction string                 // Optional system prompt
	History           []core.Turn            // Ordered transcript
	Tools             []core.ToolDeclaration // Optional tool declarations
	Temperature       float64
	JSONMode          bool // Ask the backend for a JSON object answer
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the normalized result of one provider call.
type Response struct {
	Text         string              // Concatenated text parts
	ToolCalls    []core.FunctionCall // Requested tool calls, in order
	RawTurn      core.Turn           // Full model turn to append to history
	ModelUsed    string              // Model id that produced the answer
	FinishReason string
	Usage        *TokenUsage
}

// Info contains metadata about a provider implementation.
type Info struct {
	Name          string `json:"name"`                     // Default model id
	Provider      string `json:"provider"`                 // "openai", "anthropic", "gemini", ...
	FallbackModel string `json:"fallback_model,omitempty"` // Secondary same-provider model
	SupportsTools bool   `json:"supports_tools"`
}

// Provider is the minimal interface the loop needs to drive generation.
// Implementations are stateless and safe for concurrent use.
type Provider interface {
	Call(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the provider implementation.
	Info() Info
}

// NewResponse assembles a Response from a model turn, deriving Text and ToolCalls.
func NewResponse(turn core.Turn, modelUsed, finishReason string) *Response {
	if turn.Role == "" {
		turn.Role = core.RoleModel
	}
	return &Response{
		Text:         turn.Text(),
		ToolCalls:    turn.FunctionCalls(),
		RawTurn:      turn,
		ModelUsed:    modelUsed,
		FinishReason: finishReason,
	}
}

// ScriptStep configures one provider call in a scripted sequence.
type ScriptStep struct {
	Turn core.Turn
	Err  error
}

// ScriptedProvider is a deterministic in-memory Provider useful for tests & examples.
// Once the script is exhausted it echoes the last user text.
type ScriptedProvider struct {
	mu       sync.Mutex
	info     Info
	steps    []ScriptStep
	index    int
	requests []Request
}

// NewScriptedProvider constructs a ScriptedProvider replaying the given steps.
func NewScriptedProvider(name string, steps ...ScriptStep) *ScriptedProvider {
	cloned := make([]ScriptStep, len(steps))
	copy(cloned, steps)
	return &ScriptedProvider{
		info:  Info{Name: name, Provider: "scripted", SupportsTools: true},
		steps: cloned,
	}
}

// TextStep is a helper producing a plain text model turn.
func TextStep(text string) ScriptStep {
	return ScriptStep{Turn: core.NewTextTurn(core.RoleModel, text)}
}

// CallStep is a helper producing a model turn with the given tool calls.
func CallStep(calls ...core.FunctionCall) ScriptStep {
	parts := make([]core.Part, len(calls))
	for i, c := range calls {
		parts[i] = core.FunctionCallPart{FunctionCall: c}
	}
	return ScriptStep{Turn: core.Turn{Role: core.RoleModel, Parts: parts}}
}

// ErrorStep is a helper producing a failed call.
func ErrorStep(err error) ScriptStep { return ScriptStep{Err: err} }

// Call implements Provider.
func (p *ScriptedProvider) Call(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, cloneRequest(req))
	modelID := req.Model
	if modelID == "" {
		modelID = p.info.Name
	}

	if p.index >= len(p.steps) {
		if len(req.History) == 0 {
			return nil, fmt.Errorf("no history provided")
		}
		last := req.History[len(req.History)-1]
		turn := core.NewTextTurn(core.RoleModel, fmt.Sprintf("Mock response to: %s", last.Text()))
		return NewResponse(turn, modelID, "stop"), nil
	}
	step := p.steps[p.index]
	p.index++
	if step.Err != nil {
		return nil, step.Err
	}
	return NewResponse(step.Turn.Clone(), modelID, "stop"), nil
}

// Requests returns a copy of every request received so far.
func (p *ScriptedProvider) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, len(p.requests))
	copy(out, p.requests)
	return out
}

// Calls returns the number of calls received so far.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Info implements Provider.
func (p *ScriptedProvider) Info() Info { return p.info }

func cloneRequest(req Request) Request {
	history := make([]core.Turn, len(req.History))
	for i, t := range req.History {
		history[i] = t.Clone()
	}
	req.History = history
	return req
}
