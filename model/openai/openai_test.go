package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, status int, body string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if captured != nil {
			_ = json.Unmarshal(raw, captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestModel(srv *httptest.Server) *Model {
	return NewModel(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL + "/"
	})
}

func TestModel_ToolCallResponse(t *testing.T) {
	var captured map[string]any
	srv := newTestServer(t, http.StatusOK, `{
		"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o",
		"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"",
			"tool_calls":[{"id":"call_1","type":"function","function":{"name":"lookup","arguments":"{\"q\":\"go\"}"}}]}}],
		"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`, &captured)

	m := newTestModel(srv)
	resp, err := m.Call(context.Background(), model.Request{
		SystemInstruction: "be brief",
		History:           []core.Turn{core.NewTextTurn(core.RoleUser, "find go")},
		Tools:             []core.ToolDeclaration{{Name: "lookup", Description: "search", Parameters: map[string]any{"type": "object"}}},
		Temperature:       0.2,
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, map[string]any{"q": "go"}, resp.ToolCalls[0].Args)
	assert.Equal(t, DefaultModel, resp.ModelUsed)
	assert.Equal(t, 5, resp.Usage.TotalTokens)

	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	tools := captured["tools"].([]any)
	assert.Len(t, tools, 1)
}

func TestModel_ToolResultsPrecedeAttachments(t *testing.T) {
	var captured map[string]any
	srv := newTestServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o",
		"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"done"}}]}`, &captured)

	history := []core.Turn{
		core.NewTextTurn(core.RoleUser, "look at this"),
		{Role: core.RoleModel, Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "ask_user"}}}},
		{Role: core.RoleUser, Parts: []core.Part{
			core.InlineDataPart{MimeType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
			core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "ask_user", Response: "here"}},
		}},
	}
	resp, err := newTestModel(srv).Call(context.Background(), model.Request{History: history})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text)

	messages := captured["messages"].([]any)
	require.Len(t, messages, 4)
	assert.Equal(t, "assistant", messages[1].(map[string]any)["role"])
	assert.Equal(t, "tool", messages[2].(map[string]any)["role"])
	assert.Equal(t, "user", messages[3].(map[string]any)["role"])
}

func TestModel_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   error
	}{
		{"rate limit", http.StatusTooManyRequests, model.ErrRateLimited},
		{"auth", http.StatusUnauthorized, model.ErrAuth},
		{"server", http.StatusInternalServerError, model.ErrServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.status, `{"error":{"message":"nope","type":"x"}}`, nil)
			_, err := newTestModel(srv).Call(context.Background(), model.Request{
				History: []core.Turn{core.NewTextTurn(core.RoleUser, "hi")},
			})
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestModel_EmptyResponse(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o",
		"choices":[{"index":0,"finish_reason":"content_filter","message":{"role":"assistant","content":""}}]}`, nil)
	_, err := newTestModel(srv).Call(context.Background(), model.Request{
		History: []core.Turn{core.NewTextTurn(core.RoleUser, "hi")},
	})
	assert.ErrorIs(t, err, model.ErrEmptyResponse)
}

func TestConstructor_MissingCredential(t *testing.T) {
	_, err := Constructor(context.Background(), model.Config{Settings: core.MapSettings{}})
	assert.ErrorIs(t, err, model.ErrMissingCredential)
}

func TestModel_JSONMode(t *testing.T) {
	var captured map[string]any
	srv := newTestServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o",
		"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"message\":\"hi\"}"}}]}`, &captured)
	_, err := newTestModel(srv).Call(context.Background(), model.Request{
		Model:    "gpt-4o-mini",
		History:  []core.Turn{core.NewTextTurn(core.RoleUser, "hi")},
		JSONMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", captured["model"])
	format := captured["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
}

func TestModel_InlineMediaParts(t *testing.T) {
	var captured map[string]any
	srv := newTestServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o",
		"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}]}`, &captured)

	history := []core.Turn{{Role: core.RoleUser, Parts: []core.Part{
		core.TextPart{Text: "summarize"},
		core.InlineDataPart{MimeType: "application/pdf", Data: []byte("%PDF")},
		core.InlineDataPart{MimeType: "audio/wav", Data: []byte("RIFF")},
		core.InlineDataPart{MimeType: "audio/mpeg", Data: []byte("ID3")},
		core.InlineDataPart{MimeType: "video/mp4", Data: []byte("mp4")},
	}}}
	_, err := newTestModel(srv).Call(context.Background(), model.Request{History: history})
	require.NoError(t, err)

	messages := captured["messages"].([]any)
	require.Len(t, messages, 1)
	content := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 5)

	file := content[1].(map[string]any)
	assert.Equal(t, "file", file["type"])
	assert.Equal(t, "data:application/pdf;base64,JVBERg==", file["file"].(map[string]any)["file_data"])

	wav := content[2].(map[string]any)
	assert.Equal(t, "input_audio", wav["type"])
	assert.Equal(t, "wav", wav["input_audio"].(map[string]any)["format"])
	assert.Equal(t, "UklGRg==", wav["input_audio"].(map[string]any)["data"])

	mp3 := content[3].(map[string]any)
	assert.Equal(t, "mp3", mp3["input_audio"].(map[string]any)["format"])

	assert.Equal(t, "text", content[4].(map[string]any)["type"])
}
