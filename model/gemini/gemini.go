// Package gemini provides a model.Provider for the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
	"google.golang.org/genai"
)

const (
	// ProviderName identifies this backend in configuration.
	ProviderName = "gemini"
	// APIKeySetting is the settings key holding the API key.
	APIKeySetting = "GEMINI_API_KEY"
	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-2.5-pro"
	// DefaultFallbackModel is used after a rate limit.
	DefaultFallbackModel = "gemini-2.5-flash"

	jsonMime = "application/json"
)

// Options configures the Gemini adapter.
type Options struct {
	Model           string
	FallbackModel   string
	MaxOutputTokens int32
	APIKey          string
	BaseURL         string
	HTTPClient      *http.Client
}

// Model wraps the genai client behind model.Provider.
type Model struct {
	client *genai.Client
	opts   Options
}

var _ model.Provider = (*Model)(nil)

// NewModel creates a Gemini adapter backed by the Gemini Developer API.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, model.NewError(model.ErrBadRequest, ProviderName, opts.Model, err)
	}

	return NewModelFromClient(client, func(o *Options) { *o = opts }), nil
}

// NewModelFromClient creates a Gemini adapter from an existing client.
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Constructor builds the adapter from a model.Config.
func Constructor(ctx context.Context, cfg model.Config) (model.Provider, error) {
	key, ok := cfg.Settings.Lookup(APIKeySetting)
	if !ok {
		return nil, model.MissingCredentialError(ProviderName, APIKeySetting)
	}
	return NewModel(ctx, func(o *Options) {
		o.APIKey = key
		o.BaseURL = cfg.BaseURL
		o.HTTPClient = cfg.HTTPClient
		if cfg.Model != "" {
			o.Model = cfg.Model
		}
		if cfg.FallbackModel != "" {
			o.FallbackModel = cfg.FallbackModel
		}
		if cfg.MaxTokens > 0 {
			o.MaxOutputTokens = int32(cfg.MaxTokens)
		}
	})
}

func defaultOptions() Options {
	return Options{
		Model:           DefaultModel,
		FallbackModel:   DefaultFallbackModel,
		MaxOutputTokens: 8192,
	}
}

// Call implements model.Provider.
func (m *Model) Call(ctx context.Context, req model.Request) (*model.Response, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = m.opts.Model
	}

	resp, err := m.client.Models.GenerateContent(ctx, modelID, buildContents(req.History), m.buildConfig(req))
	if err != nil {
		return nil, classify(err, modelID)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, model.NewError(model.ErrEmptyResponse, ProviderName, modelID, errors.New("no candidates"))
	}

	candidate := resp.Candidates[0]

	var parts []core.Part
	for _, p := range candidate.Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		switch {
		case p.FunctionCall != nil:
			id := p.FunctionCall.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			args := p.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:   id,
				Name: p.FunctionCall.Name,
				Args: args,
			}})
		case strings.TrimSpace(p.Text) != "":
			parts = append(parts, core.TextPart{Text: p.Text})
		}
	}

	finishReason := "stop"
	if candidate.FinishReason != "" {
		finishReason = strings.ToLower(string(candidate.FinishReason))
	}
	if len(parts) == 0 {
		return nil, model.NewError(model.ErrEmptyResponse, ProviderName, modelID, errors.New("finish reason "+finishReason))
	}

	out := model.NewResponse(core.Turn{Role: core.RoleModel, Parts: parts}, modelID, finishReason)
	if u := resp.UsageMetadata; u != nil {
		out.Usage = &model.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func (m *Model) buildConfig(req model.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: m.opts.MaxOutputTokens,
	}
	if sys := model.SystemInstruction(req); sys != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: sys}}}
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  convertSchema(t.Parameters),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	} else if req.JSONMode {
		// The API rejects a JSON response type combined with function calling.
		cfg.ResponseMIMEType = jsonMime
	}
	return cfg
}

// buildContents maps turns onto Gemini contents. Function responses lead a
// user content, followed by any attachments delivered with them.
func buildContents(history []core.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		role := "user"
		if turn.Role == core.RoleModel {
			role = "model"
		}

		var responses, rest []*genai.Part
		for _, p := range turn.Parts {
			switch part := p.(type) {
			case core.TextPart:
				if part.Text != "" {
					rest = append(rest, &genai.Part{Text: part.Text})
				}
			case core.InlineDataPart:
				if model.IsTextMime(part.MimeType) {
					rest = append(rest, &genai.Part{Text: string(part.Data)})
					continue
				}
				// Images, audio, video and pdf all travel as inline blobs.
				rest = append(rest, &genai.Part{InlineData: &genai.Blob{MIMEType: part.MimeType, Data: part.Data}})
			case core.FunctionCallPart:
				rest = append(rest, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   part.FunctionCall.ID,
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				}})
			case core.FunctionResponsePart:
				fr := part.FunctionResponse
				responses = append(responses, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       fr.ID,
					Name:     fr.Name,
					Response: model.ResponseMap(fr),
				}})
			}
		}

		parts := append(responses, rest...)
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

// convertSchema maps a JSON schema object onto genai.Schema.
func convertSchema(s map[string]any) *genai.Schema {
	if len(s) == 0 {
		return nil
	}

	out := &genai.Schema{}
	if t, ok := s["type"].(string); ok {
		out.Type = schemaType(t)
	}
	if d, ok := s["description"].(string); ok {
		out.Description = d
	}
	if props, ok := s["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if ps, ok := raw.(map[string]any); ok {
				out.Properties[name] = convertSchema(ps)
			}
		}
	}
	if items, ok := s["items"].(map[string]any); ok {
		out.Items = convertSchema(items)
	}
	out.Required = stringSlice(s["required"])
	out.Enum = stringSlice(s["enum"])
	return out
}

func schemaType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}

func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func classify(err error, modelID string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return model.FromStatus(ProviderName, modelID, apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return model.FromStatus(ProviderName, modelID, apiErrPtr.Code, err)
	}
	return model.NewError(model.ErrServer, ProviderName, modelID, err)
}

// Info returns metadata describing this adapter.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      ProviderName,
		FallbackModel: m.opts.FallbackModel,
		SupportsTools: true,
	}
}
