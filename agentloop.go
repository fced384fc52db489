// Package agentloop provides a high-level façade over the orchestration loop.
// Most applications interact with this package by:
//  1. Creating an AgentLoop via New() (optionally overriding default stores)
//  2. Registering tools through Options.Tools or an external executor
//  3. Calling Run with a prompt
//
// All defaults are safe for local development: in-memory variables and
// semantic memory, no transcript persistence and the provider chosen by
// Options.Config.Provider with credentials read from the environment.
package agentloop

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/flow"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/memory"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/model/anthropic"
	"github.com/hupe1980/agentloop/model/gemini"
	"github.com/hupe1980/agentloop/model/openai"
	"github.com/hupe1980/agentloop/tool"
	"github.com/hupe1980/agentloop/variables"
)

// Options configures the AgentLoop instance.
type Options struct {
	// Config holds the per-run defaults (provider, model, limits).
	Config flow.Config

	// Tools are registered in-process. Ignored when Registry is set.
	Tools []tool.Tool
	// Registry declares the tool set; pair it with Executor for tools
	// implemented outside the process.
	Registry *tool.Registry
	Executor core.ToolExecutor

	// Provider bypasses the factory when set.
	Provider model.Provider
	Factory  *model.Factory
	Settings core.Settings

	// Stores (defaults to in-memory implementations if not provided)
	Variables   core.VariableStore
	MemoryStore core.MemoryStore
	// TranscriptStore persists per-key transcripts. When nil and
	// TranscriptDir is set, a file store rooted there is used.
	TranscriptStore core.TranscriptStore
	TranscriptDir   string

	QuestionDetector flow.QuestionDetector
	SilencePolicy    flow.SilencePolicy

	// Logger (defaults to NoOp logger if nil)
	Logger         logging.Logger
	TracerProvider trace.TracerProvider
}

// AgentLoop bundles a tool registry, stores and the orchestration loop.
type AgentLoop struct {
	opts     Options
	registry *tool.Registry
	flow     *flow.Flow
}

// DefaultFactory returns a factory with the openai, anthropic and gemini
// adapters registered.
func DefaultFactory() *model.Factory {
	f := model.NewFactory()
	f.Register(openai.ProviderName, openai.Constructor)
	f.Register(anthropic.ProviderName, anthropic.Constructor)
	f.Register(gemini.ProviderName, gemini.Constructor)
	return f
}

// New creates a new AgentLoop. Any unset store is initialized with an
// in-memory implementation.
func New(optFns ...func(o *Options)) (*AgentLoop, error) {
	cfg := flow.DefaultConfig()
	cfg.Provider = openai.ProviderName

	opts := Options{
		Config:      cfg,
		Settings:    core.EnvSettings{},
		Variables:   variables.New(nil),
		MemoryStore: memory.NewInMemoryStore(),
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Factory == nil {
		opts.Factory = DefaultFactory()
	}
	if opts.TranscriptStore == nil && opts.TranscriptDir != "" {
		opts.TranscriptStore = memory.NewFileTranscriptStore(opts.TranscriptDir)
	}

	registry := opts.Registry
	if registry == nil {
		var err error
		if registry, err = tool.NewRegistry(opts.Tools...); err != nil {
			return nil, err
		}
	}

	f := flow.New(func(o *flow.Options) {
		o.Provider = opts.Provider
		o.Factory = opts.Factory
		o.Settings = opts.Settings
		o.Executor = opts.Executor
		o.Variables = opts.Variables
		o.Memory = opts.MemoryStore
		o.Transcripts = opts.TranscriptStore
		o.Logger = opts.Logger
		o.TracerProvider = opts.TracerProvider
		if opts.QuestionDetector != nil {
			o.QuestionDetector = opts.QuestionDetector
		}
		if opts.SilencePolicy != nil {
			o.SilencePolicy = opts.SilencePolicy
		}
	})

	return &AgentLoop{opts: opts, registry: registry, flow: f}, nil
}

// Run executes prompt with the configured defaults.
func (a *AgentLoop) Run(ctx context.Context, prompt string) (*flow.Result, error) {
	return a.flow.Run(ctx, prompt, a.registry, a.opts.Config)
}

// RunWith executes prompt with a per-call configuration.
func (a *AgentLoop) RunWith(ctx context.Context, prompt string, cfg flow.Config) (*flow.Result, error) {
	return a.flow.Run(ctx, prompt, a.registry, cfg)
}

// Registry returns the immutable tool registry.
func (a *AgentLoop) Registry() *tool.Registry { return a.registry }

// Variables returns the variable store shared by prompts and tools.
func (a *AgentLoop) Variables() core.VariableStore { return a.opts.Variables }
