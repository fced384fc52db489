// Package openai provides an implementation of model.Provider using the OpenAI
// Chat Completions API (including function/tool calling and JSON mode). It
// adapts agentloop's normalized Request/Response structures into the SDK's
// message format and back.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const (
	// ProviderName identifies this backend in configuration.
	ProviderName = "openai"
	// APIKeySetting is the settings key holding the API key.
	APIKeySetting = "OPENAI_API_KEY"
	// DefaultModel is used when no model is configured.
	DefaultModel = openai.ChatModelGPT4o
	// DefaultFallbackModel is used after a rate limit.
	DefaultFallbackModel = openai.ChatModelGPT4oMini
)

// Options configure the OpenAI adapter.
type Options struct {
	Model               string
	FallbackModel       string
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
	HTTPClient          *http.Client
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Provider interface.
type Model struct {
	client *openai.Client
	opts   Options
}

var _ model.Provider = (*Model)(nil)

// NewModel creates a new OpenAI adapter using the official client. SDK level
// retries are disabled; model.Retrier owns the retry policy.
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
	client := openai.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new OpenAI adapter from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
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
			o.MaxCompletionTokens = cfg.MaxTokens
		}
	}), nil
}

func defaultOptions() Options {
	return Options{
		Model:               DefaultModel,
		FallbackModel:       DefaultFallbackModel,
		MaxCompletionTokens: 4096,
	}
}

// Call implements model.Provider.
func (m *Model) Call(ctx context.Context, req model.Request) (*model.Response, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = m.opts.Model
	}
	params := m.buildParams(req, modelID, buildMessages(req))

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(err, modelID)
	}
	if len(resp.Choices) == 0 {
		return nil, model.NewError(model.ErrEmptyResponse, ProviderName, modelID, errors.New("no choices returned"))
	}
	ch0 := resp.Choices[0]
	parts := make([]core.Part, 0, len(ch0.Message.ToolCalls)+1)
	if strings.TrimSpace(ch0.Message.Content) != "" {
		parts = append(parts, core.TextPart{Text: ch0.Message.Content})
	}
	for _, tc := range ch0.Message.ToolCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: model.DecodeArgs(tc.Function.Arguments),
		}})
	}
	if len(parts) == 0 {
		return nil, model.NewError(model.ErrEmptyResponse, ProviderName, modelID, errors.New("finish reason "+ch0.FinishReason))
	}
	out := model.NewResponse(core.Turn{Role: core.RoleModel, Parts: parts}, modelID, ch0.FinishReason)
	out.Usage = &model.TokenUsage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return out, nil
}

// buildMessages converts normalized turns into OpenAI chat messages. Tool
// results must directly follow the assistant tool call message, so inline
// attachments of a result turn are sent as a separate user message after them.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if sys := model.SystemInstruction(req); sys != "" {
		messages = append(messages, openai.SystemMessage(sys))
	}
	for _, turn := range req.History {
		switch turn.Role {
		case core.RoleModel:
			messages = append(messages, assistantMessage(turn))
		default:
			for _, fr := range turn.FunctionResponses() {
				messages = append(messages, openai.ToolMessage(model.ResponseText(fr), fr.ID))
			}
			if content := userContent(turn.Parts); len(content) > 0 {
				messages = append(messages, openai.UserMessage(content))
			}
		}
	}
	return messages
}

func assistantMessage(turn core.Turn) openai.ChatCompletionMessageParamUnion {
	text := turn.Text()
	calls := turn.FunctionCalls()
	if len(calls) == 0 {
		return openai.AssistantMessage(text)
	}
	toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(calls))
	for i, fc := range calls {
		toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
			ID:   fc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      fc.Name,
				Arguments: model.EncodeArgs(fc.Args),
			},
		}
	}
	asst := openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
	if text != "" {
		asst.Content.OfString = openai.String(text)
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
}

// userContent converts text and inline data parts into content parts.
func userContent(parts []core.Part) []openai.ChatCompletionContentPartUnionParam {
	var content []openai.ChatCompletionContentPartUnionParam
	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				content = append(content, openai.TextContentPart(part.Text))
			}
		case core.InlineDataPart:
			switch {
			case model.IsImageMime(part.MimeType):
				content = append(content, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: model.DataURL(part.MimeType, part.Data),
				}))
			case model.IsPDFMime(part.MimeType):
				content = append(content, openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
					FileData: openai.String(model.DataURL(part.MimeType, part.Data)),
					Filename: openai.String("attachment.pdf"),
				}))
			case model.IsTextMime(part.MimeType):
				content = append(content, openai.TextContentPart(string(part.Data)))
			default:
				if audio, ok := audioContent(part); ok {
					content = append(content, audio)
					continue
				}
				content = append(content, openai.TextContentPart(model.BinaryPlaceholder(part)))
			}
		}
	}
	return content
}

// audioContent maps wav and mp3 data onto an input_audio part. Other audio
// and video formats are not accepted by chat completions.
func audioContent(part core.InlineDataPart) (openai.ChatCompletionContentPartUnionParam, bool) {
	in := openai.ChatCompletionContentPartInputAudioInputAudioParam{Data: model.Base64(part.Data)}
	switch part.MimeType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		in.Format = "wav"
	case "audio/mpeg", "audio/mp3":
		in.Format = "mp3"
	default:
		return openai.ChatCompletionContentPartUnionParam{}, false
	}
	return openai.InputAudioContentPart(in), true
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (m *Model) buildParams(
	req model.Request,
	modelID string,
	messages []openai.ChatCompletionMessageParamUnion,
) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               shared.ChatModel(modelID),
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, decl := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        decl.Name,
				Description: openai.String(decl.Description),
				Parameters:  decl.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

func classify(err error, modelID string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return model.FromStatus(ProviderName, modelID, apiErr.StatusCode, err)
	}
	return model.NewError(model.ErrServer, ProviderName, modelID, err)
}

// Info returns metadata describing this OpenAI adapter.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      ProviderName,
		FallbackModel: m.opts.FallbackModel,
		SupportsTools: true,
	}
}
