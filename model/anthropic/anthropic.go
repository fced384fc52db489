// Package anthropic provides a model.Provider for the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

const (
	// ProviderName identifies this backend in configuration.
	ProviderName = "anthropic"
	// APIKeySetting is the settings key holding the API key.
	APIKeySetting = "ANTHROPIC_API_KEY"
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-20250514"
	// DefaultFallbackModel is used after a rate limit.
	DefaultFallbackModel = "claude-3-5-haiku-latest"
)

// Options configures the Anthropic adapter (model ids, max tokens, API key).
// Extend via functional options to preserve stability.
type Options struct {
	Model         string
	FallbackModel string
	MaxTokens     int64
	APIKey        string
	BaseURL       string
	HTTPClient    *http.Client
}

// Model wraps the Anthropic Messages API behind the generic model.Provider interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

var _ model.Provider = (*Model)(nil)

// NewModel creates a new Anthropic adapter using the official client. SDK
// level retries are disabled; model.Retrier owns the retry policy.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic adapter from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// Constructor builds the adapter from a model.Config, resolving the API key
// through the configured settings.
func Constructor(_ context.Context, cfg model.Config) (model.Provider, error) {
	key, ok := cfg.Settings.Lookup(APIKeySetting)
	if !ok {
		return nil, model.MissingCredentialError(ProviderName, APIKeySetting)
	}
	return NewModel(func(o *Options) {
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
			o.MaxTokens = cfg.MaxTokens
		}
	}), nil
}

func defaultOptions() Options {
	return Options{
		Model:         DefaultModel,
		FallbackModel: DefaultFallbackModel,
		MaxTokens:     4096,
	}
}

// Call implements model.Provider.
func (m *Model) Call(ctx context.Context, req model.Request) (*model.Response, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = m.opts.Model
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(modelID),
		Messages:    buildMessages(req.History),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(req.Temperature),
	}
	if sys := model.SystemInstruction(req); sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(err, modelID)
	}

	var parts []core.Part
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			if strings.TrimSpace(textBlock.Text) != "" {
				parts = append(parts, core.TextPart{Text: textBlock.Text})
			}
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := map[string]any{}
			if toolBlock.Input != nil {
				if argsBytes, err := json.Marshal(toolBlock.Input); err == nil {
					args = model.DecodeArgs(string(argsBytes))
				}
			}
			parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:   toolBlock.ID,
				Name: toolBlock.Name,
				Args: args,
			}})
		}
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}
	if len(parts) == 0 {
		return nil, model.NewError(model.ErrEmptyResponse, ProviderName, modelID, errors.New("stop reason "+finishReason))
	}

	out := model.NewResponse(core.Turn{Role: core.RoleModel, Parts: parts}, modelID, finishReason)
	out.Usage = &model.TokenUsage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}
	return out, nil
}

// buildMessages converts agentloop turns to Anthropic message format.
func buildMessages(history []core.Turn) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, turn := range history {
		switch turn.Role {
		case core.RoleModel:
			if content := buildAssistantContent(turn.Parts); len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		default:
			if content := buildUserContent(turn.Parts); len(content) > 0 {
				messages = append(messages, anthropic.NewUserMessage(content...))
			}
		}
	}
	return messages
}

// buildUserContent places tool_result blocks first, as the API requires,
// followed by text and inline attachments in their original order.
func buildUserContent(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var results, content []anthropic.ContentBlockParamUnion
	for _, p := range parts {
		switch part := p.(type) {
		case core.FunctionResponsePart:
			fr := part.FunctionResponse
			results = append(results, anthropic.NewToolResultBlock(fr.ID, model.ResponseText(fr), fr.Failed()))
		case core.TextPart:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		case core.InlineDataPart:
			switch {
			case model.IsImageMime(part.MimeType):
				content = append(content, anthropic.NewImageBlockBase64(part.MimeType, model.Base64(part.Data)))
			case model.IsPDFMime(part.MimeType):
				content = append(content, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: model.Base64(part.Data)}))
			case model.IsTextMime(part.MimeType):
				content = append(content, anthropic.NewTextBlock(string(part.Data)))
			default:
				content = append(content, anthropic.NewTextBlock(model.BinaryPlaceholder(part)))
			}
		}
	}
	return append(results, content...)
}

// buildAssistantContent builds content for assistant messages.
func buildAssistantContent(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion
	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		case core.FunctionCallPart:
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			content = append(content, anthropic.NewToolUseBlock(part.FunctionCall.ID, args, part.FunctionCall.Name))
		}
	}
	return content
}

// buildTools converts tool declarations to Anthropic tool format.
func buildTools(decls []core.ToolDeclaration) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(decls))

	for i, decl := range decls {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if params := decl.Parameters; params != nil {
			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}
			switch required := params["required"].(type) {
			case []string:
				inputSchema.Required = required
			case []any:
				var reqStrings []string
				for _, r := range required {
					if s, ok := r.(string); ok {
						reqStrings = append(reqStrings, s)
					}
				}
				inputSchema.Required = reqStrings
			}
		}

		tools[i] = anthropic.ToolUnionParamOfTool(inputSchema, decl.Name)
		if tools[i].OfTool != nil && decl.Description != "" {
			tools[i].OfTool.Description = anthropic.String(decl.Description)
		}
	}

	return tools
}

func classify(err error, modelID string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return model.FromStatus(ProviderName, modelID, apiErr.StatusCode, err)
	}
	return model.NewError(model.ErrServer, ProviderName, modelID, err)
}

// Info returns metadata describing this Anthropic adapter.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      ProviderName,
		FallbackModel: m.opts.FallbackModel,
		SupportsTools: true,
	}
}
