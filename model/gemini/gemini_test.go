package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func newTestModel(t *testing.T, status int, body string, captured *map[string]any) *Model {
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

	m, err := NewModel(context.Background(), func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
	})
	require.NoError(t, err)
	return m
}

func TestModel_FunctionCallGetsID(t *testing.T) {
	m := newTestModel(t, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[
		{"functionCall":{"name":"lookup","args":{"q":"go"}}}]},"finishReason":"STOP"}],
		"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2,"totalTokenCount":5}}`, nil)

	resp, err := m.Call(context.Background(), model.Request{
		History: []core.Turn{core.NewTextTurn(core.RoleUser, "find go")},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.True(t, strings.HasPrefix(resp.ToolCalls[0].ID, "call_"))
	assert.Equal(t, "go", resp.ToolCalls[0].Args["q"])
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
	assert.Equal(t, DefaultModel, resp.ModelUsed)
}

func TestModel_JSONModeWithoutTools(t *testing.T) {
	var captured map[string]any
	m := newTestModel(t, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"a\":1}"}]},"finishReason":"STOP"}]}`, &captured)

	resp, err := m.Call(context.Background(), model.Request{
		History:  []core.Turn{core.NewTextTurn(core.RoleUser, "json please")},
		JSONMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, resp.Text)

	gen, ok := captured["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, jsonMime, gen["responseMimeType"])
}

func TestModel_ErrorClassification(t *testing.T) {
	m := newTestModel(t, http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`, nil)
	_, err := m.Call(context.Background(), model.Request{History: []core.Turn{core.NewTextTurn(core.RoleUser, "hi")}})
	assert.ErrorIs(t, err, model.ErrRateLimited)
}

func TestBuildContents_ResponsesFirst(t *testing.T) {
	contents := buildContents([]core.Turn{
		{Role: core.RoleUser, Parts: []core.Part{
			core.InlineDataPart{MimeType: "image/png", Data: []byte("png")},
			core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "ask_user", Response: "yes"}},
		}},
		{Role: core.RoleModel, Parts: []core.Part{}},
	})
	require.Len(t, contents, 1)
	require.Len(t, contents[0].Parts, 2)
	require.NotNil(t, contents[0].Parts[0].FunctionResponse)
	assert.Equal(t, map[string]any{"output": "yes"}, contents[0].Parts[0].FunctionResponse.Response)
	assert.NotNil(t, contents[0].Parts[1].InlineData)
}

func TestBuildContents_MediaAsBlobs(t *testing.T) {
	media := []core.InlineDataPart{
		{MimeType: "audio/mpeg", Data: []byte("ID3")},
		{MimeType: "video/mp4", Data: []byte("mp4")},
		{MimeType: "application/pdf", Data: []byte("%PDF")},
		{MimeType: "image/jpeg", Data: []byte("jpg")},
	}
	parts := []core.Part{core.InlineDataPart{MimeType: "text/plain", Data: []byte("notes")}}
	for _, m := range media {
		parts = append(parts, m)
	}

	contents := buildContents([]core.Turn{{Role: core.RoleUser, Parts: parts}})
	require.Len(t, contents, 1)
	require.Len(t, contents[0].Parts, 5)

	assert.Equal(t, "notes", contents[0].Parts[0].Text)
	for i, m := range media {
		blob := contents[0].Parts[i+1].InlineData
		require.NotNil(t, blob, m.MimeType)
		assert.Equal(t, m.MimeType, blob.MIMEType)
		assert.Equal(t, m.Data, blob.Data)
	}
}

func TestConvertSchema(t *testing.T) {
	s := convertSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tags": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"mode": map[string]any{"type": "string", "enum": []any{"a", "b"}},
		},
		"required": []any{"mode"},
	})
	require.NotNil(t, s)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"mode"}, s.Required)
	assert.Equal(t, genai.TypeString, s.Properties["tags"].Items.Type)
	assert.Equal(t, []string{"a", "b"}, s.Properties["mode"].Enum)
}

func TestConstructor_MissingCredential(t *testing.T) {
	_, err := Constructor(context.Background(), model.Config{Settings: core.MapSettings{}})
	assert.ErrorIs(t, err, model.ErrMissingCredential)
}
