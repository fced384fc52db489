// Package flow implements the orchestration loop: it drives provider calls,
// dispatches tool batches, applies iteration and wall-clock caps and turns the
// conversation into a terminal Result.
package flow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentloop/attachment"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/session"
	"github.com/hupe1980/agentloop/tool"
)

const tracerName = "github.com/hupe1980/agentloop/flow"

var (
	// ErrInvalidInput is returned when the prompt resolves to empty text.
	ErrInvalidInput = errors.New("flow: prompt resolved to empty text")
	// ErrMaxIterations is returned when the iteration cap is hit without any successful tool call.
	ErrMaxIterations = errors.New("flow: iteration limit reached")
	// ErrTimeout is returned when the wall-clock budget elapsed.
	ErrTimeout = errors.New("flow: run timed out")
	// ErrAborted is returned when the caller cancelled the run.
	ErrAborted = errors.New("flow: run aborted")
)

// Status is the terminal outcome of a run.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusDegraded Status = "degraded"
	StatusTimeout  Status = "timeout"
	StatusAborted  Status = "aborted"
	StatusFailed   Status = "failed"
)

// Result is the terminal result of a run.
type Result struct {
	Status Status
	// Text is the final model text, or a summary for degraded and timed out runs.
	Text string
	// Output is the extracted structured output.
	Output     any
	Iterations int
	ToolCalls  core.ToolCallTally
	ModelUsed  string
	Duration   time.Duration
	History    []core.Turn
}

// Config selects provider, model and limits for one run.
type Config struct {
	Provider      string
	Model         string
	FallbackModel string
	Temperature   float64
	JSONMode      bool
	// MemoryKey addresses the persisted transcript and tags semantic memory.
	MemoryKey string
	// OutputTarget names the variable capturing the run output.
	OutputTarget string
	// AttachmentSource names a variable or location holding prompt attachments.
	AttachmentSource string
	// DiscoverAttachments searches well-known variables even without a source.
	DiscoverAttachments bool
	SystemInstruction   string
	MaxIterations       int
	Timeout             time.Duration
	ToolTimeout         time.Duration
	MaxRetries          int
	BaseBackoff         time.Duration
	// MemorySearchLimit and MemoryThreshold tune context injection.
	MemorySearchLimit int
	MemoryThreshold   float64
}

// DefaultConfig returns the default run configuration.
func DefaultConfig() Config {
	return Config{
		Temperature:       0.7,
		MaxIterations:     15,
		Timeout:           5 * time.Minute,
		ToolTimeout:       60 * time.Second,
		MaxRetries:        3,
		BaseBackoff:       time.Second,
		MemorySearchLimit: 5,
		MemoryThreshold:   0.7,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.ToolTimeout == 0 {
		c.ToolTimeout = d.ToolTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MemorySearchLimit <= 0 {
		c.MemorySearchLimit = d.MemorySearchLimit
	}
	if c.MemoryThreshold <= 0 {
		c.MemoryThreshold = d.MemoryThreshold
	}
	return c
}

// Options wires the loop's collaborators.
type Options struct {
	// Provider is used as is when set; otherwise Factory builds one per run.
	Provider model.Provider
	Factory  *model.Factory
	Settings core.Settings

	// Executor runs tools; defaults to the run's registry.
	Executor    core.ToolExecutor
	Variables   core.VariableStore
	Memory      core.MemoryStore
	Transcripts core.TranscriptStore

	AskUserTool      string
	QuestionDetector QuestionDetector
	SilencePolicy    SilencePolicy

	Logger         logging.Logger
	TracerProvider trace.TracerProvider

	// Now and Sleep are replaced in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Flow is the orchestration loop. A Flow is safe for concurrent use; every
// Run owns its own session.
type Flow struct {
	opts   Options
	tracer trace.Tracer
}

// New creates a Flow.
func New(optFns ...func(o *Options)) *Flow {
	opts := Options{
		Settings:         core.EnvSettings{},
		AskUserTool:      DefaultAskUserTool,
		QuestionDetector: HeuristicQuestionDetector{},
		SilencePolicy:    TerminalToolSilence{},
		Logger:           logging.NoOpLogger{},
		Now:              time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	return &Flow{opts: opts, tracer: opts.TracerProvider.Tracer(tracerName)}
}

// run is the per-invocation state.
type run struct {
	f          *Flow
	cfg        Config
	registry   *tool.Registry
	provider   model.Provider
	dispatcher Dispatcher
	transcript *session.Manager
	capture    session.Capture
	sess       *core.Session
	system     string
	logger     logging.Logger
}

// Run drives prompt to a terminal Result. Success and degraded outcomes
// return a nil error; timeout, abort and failure return the Result together
// with an error. An empty prompt fails with ErrInvalidInput before any
// network call.
func (f *Flow) Run(ctx context.Context, prompt string, registry *tool.Registry, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()
	start := f.opts.Now()

	text := prompt
	if f.opts.Variables != nil {
		text = f.opts.Variables.ResolveString(prompt)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrInvalidInput
	}

	ctx, span := f.tracer.Start(ctx, "agentloop.run", trace.WithAttributes(
		attribute.String("agentloop.provider", cfg.Provider),
		attribute.String("agentloop.model", cfg.Model),
	))
	defer span.End()

	r := &run{
		f:        f,
		cfg:      cfg,
		registry: registry,
		sess:     core.NewSession(uuid.NewString(), start, nil),
		logger:   f.opts.Logger,
	}
	if sl, ok := r.logger.(*logging.StructuredLogger); ok {
		r.logger = sl.ForRun(cfg.MemoryKey, r.sess.ID)
	}
	r.transcript = session.NewManager(func(o *session.Options) {
		o.Store = f.opts.Transcripts
		o.Variables = f.opts.Variables
		o.Logger = logging.Scoped(r.logger, "session")
	})

	res, err := r.execute(ctx, text)

	res.Duration = f.opts.Now().Sub(start)
	span.SetAttributes(
		attribute.String("agentloop.outcome", string(res.Status)),
		attribute.Int("agentloop.iterations", res.Iterations),
		attribute.String("agentloop.model_used", res.ModelUsed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	logRun(r.logger, res, err)

	return res, err
}

func (r *run) execute(ctx context.Context, prompt string) (*Result, error) {
	provider, err := r.f.buildProvider(ctx, r.cfg)
	if err != nil {
		return r.result(StatusFailed, ""), err
	}
	r.provider = model.NewRetrier(provider, func(o *model.RetryOptions) {
		o.FallbackModel = r.cfg.FallbackModel
		if o.FallbackModel == "" {
			o.FallbackModel = provider.Info().FallbackModel
		}
		o.MaxAttempts = r.cfg.MaxRetries
		o.BaseDelay = r.cfg.BaseBackoff
		o.Sleep = r.f.opts.Sleep
		o.Logger = logging.Scoped(r.logger, "model")
	})

	resolver := attachment.NewResolver(func(o *attachment.Options) {
		o.Source = r.cfg.AttachmentSource
		o.Variables = r.f.opts.Variables
		o.Logger = logging.Scoped(r.logger, "attachment")
	})
	r.dispatcher = NewDispatcher(func(o *DispatcherOptions) {
		o.Executor = r.f.opts.Executor
		o.Registry = r.registry
		o.Resolver = resolver
		o.AskUserTool = r.f.opts.AskUserTool
		o.ToolTimeout = r.cfg.ToolTimeout
		o.Logger = logging.Scoped(r.logger, "dispatcher")
	})

	seed, err := r.transcript.Seed(ctx, r.cfg.MemoryKey)
	if err != nil {
		r.logger.Warn("flow.seed.failed", "memory_key", r.cfg.MemoryKey, "error", err.Error())
	}
	r.sess.Append(seed...)

	r.system = r.systemInstruction(ctx, prompt)
	r.capture = r.transcript.BeginCapture(r.cfg.OutputTarget)

	first := core.NewTextTurn(core.RoleUser, prompt)
	if r.cfg.AttachmentSource != "" || r.cfg.DiscoverAttachments {
		for _, part := range resolver.ResolveAll(ctx, resolver.Discover()) {
			first.Parts = append(first.Parts, part)
		}
	}
	r.sess.Append(first)

	return r.loop(ctx)
}

func (r *run) loop(ctx context.Context) (*Result, error) {
	for {
		if ctx.Err() != nil {
			return r.abort()
		}
		if r.timedOut() {
			return r.timeout()
		}
		if r.sess.IterationCount >= r.cfg.MaxIterations {
			return r.exhausted()
		}
		r.sess.IterationCount++

		r.logger.Debug("flow.iteration.start", "iteration", r.sess.IterationCount, "turns", len(r.sess.History))

		resp, err := r.callProvider(ctx)
		if ctx.Err() != nil {
			return r.abort()
		}
		if err != nil {
			if errors.Is(err, model.ErrEmptyResponse) && r.f.opts.SilencePolicy != nil {
				if text, ok := r.f.opts.SilencePolicy.Resolve(r.sess.History); ok {
					r.logger.Info("flow.silence.accepted", "iteration", r.sess.IterationCount)
					return r.finish(StatusSuccess, text)
				}
			}
			return r.fail(err)
		}

		r.sess.ActiveModelID = resp.ModelUsed
		turn := resp.RawTurn.Clone()
		turn.Role = core.RoleModel

		calls := resp.ToolCalls
		if len(calls) == 0 {
			call, ok := r.implicitQuestion(resp.Text)
			if !ok {
				r.sess.Append(turn)
				return r.finish(StatusSuccess, resp.Text)
			}
			turn.Parts = append(turn.Parts, core.FunctionCallPart{FunctionCall: call})
			calls = []core.FunctionCall{call}
		}
		r.sess.Append(turn)

		batch := r.dispatch(ctx, calls)
		if ctx.Err() != nil {
			return r.abort()
		}

		for _, o := range batch.Outcomes {
			r.sess.ToolCallTally.Record(o.Response.Name, o.Response.Failed())
		}
		r.sess.Append(batch.Turn())
	}
}

func (r *run) callProvider(ctx context.Context) (*model.Response, error) {
	ctx, span := r.f.tracer.Start(ctx, "agentloop.provider.call", trace.WithAttributes(
		attribute.Int("agentloop.iteration", r.sess.IterationCount),
	))
	defer span.End()

	modelID := r.sess.ActiveModelID
	if modelID == "" {
		modelID = r.cfg.Model
	}

	start := r.f.opts.Now()
	resp, err := r.provider.Call(ctx, model.Request{
		Model:             modelID,
		SystemInstruction: r.system,
		History:           r.sess.Snapshot(),
		Tools:             r.registry.Declarations(),
		Temperature:       r.cfg.Temperature,
		JSONMode:          r.cfg.JSONMode,
	})
	dur := r.f.opts.Now().Sub(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logModelCall(r.logger, modelID, 0, dur, err)
		return nil, err
	}

	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	span.SetAttributes(
		attribute.String("agentloop.model_used", resp.ModelUsed),
		attribute.Int("agentloop.tool_calls", len(resp.ToolCalls)),
	)
	logModelCall(r.logger, resp.ModelUsed, tokens, dur, nil)
	return resp, nil
}

func (r *run) dispatch(ctx context.Context, calls []core.FunctionCall) Batch {
	ctx, span := r.f.tracer.Start(ctx, "agentloop.tools.dispatch", trace.WithAttributes(
		attribute.Int("agentloop.batch_size", len(calls)),
	))
	defer span.End()

	batch := r.dispatcher.Dispatch(ctx, calls)

	span.SetAttributes(attribute.Int("agentloop.failed", batch.Failed()))
	return batch
}

// implicitQuestion synthesizes an interaction tool call for a plain-text
// question when the interaction tool is declared.
func (r *run) implicitQuestion(text string) (core.FunctionCall, bool) {
	askUser := r.f.opts.AskUserTool
	if r.f.opts.QuestionDetector == nil || askUser == "" || !r.registry.Has(askUser) {
		return core.FunctionCall{}, false
	}
	question, ok := r.f.opts.QuestionDetector.Detect(text)
	if !ok {
		return core.FunctionCall{}, false
	}
	r.logger.Debug("flow.question.synthesized", "tool", askUser)
	return core.FunctionCall{
		ID:   "call_" + uuid.NewString(),
		Name: askUser,
		Args: map[string]any{"question": question},
	}, true
}

// systemInstruction appends semantic memory matches for the prompt.
func (r *run) systemInstruction(ctx context.Context, prompt string) string {
	system := r.cfg.SystemInstruction
	if r.f.opts.Memory == nil {
		return system
	}

	hits, err := r.f.opts.Memory.Search(ctx, prompt, r.cfg.MemorySearchLimit, r.cfg.MemoryThreshold)
	if err != nil {
		r.logger.Warn("flow.memory.search.failed", "error", err.Error())
		return system
	}
	if len(hits) == 0 {
		return system
	}

	var b strings.Builder
	if system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	b.WriteString("Relevant context:")
	for _, h := range hits {
		b.WriteString("\n- ")
		b.WriteString(h.Text)
	}
	return b.String()
}

func (r *run) timedOut() bool {
	return r.sess.Elapsed(r.f.opts.Now()) >= r.cfg.Timeout
}

func (r *run) result(status Status, text string) *Result {
	tally := r.sess.ToolCallTally
	tally.ByName = maps.Clone(tally.ByName)
	return &Result{
		Status:     status,
		Text:       text,
		Iterations: r.sess.IterationCount,
		ToolCalls:  tally,
		ModelUsed:  r.sess.ActiveModelID,
		History:    r.sess.Snapshot(),
	}
}

// finish extracts output, persists the transcript and, on success, records
// the answer in semantic memory.
func (r *run) finish(status Status, text string) (*Result, error) {
	if r.timedOut() {
		return r.timeout()
	}

	res := r.result(status, text)
	res.Output = r.transcript.ExtractFinal(text, r.capture)
	r.persist(context.Background())

	if status == StatusSuccess && r.f.opts.Memory != nil && strings.TrimSpace(text) != "" {
		err := r.f.opts.Memory.Add(context.Background(), text, map[string]any{
			"memory_key": r.cfg.MemoryKey,
			"model":      r.sess.ActiveModelID,
		})
		if err != nil {
			r.logger.Warn("flow.memory.add.failed", "error", err.Error())
		}
	}
	return res, nil
}

func (r *run) exhausted() (*Result, error) {
	tally := r.sess.ToolCallTally
	summary := fmt.Sprintf("Stopped after %d iterations. %s", r.sess.IterationCount, tallyText(tally))
	if tally.Succeeded > 0 {
		if last, ok := r.sess.LastModelTurn(); ok && last.Text() != "" {
			summary += "\n\n" + last.Text()
		}
		return r.finish(StatusDegraded, summary)
	}
	r.persist(context.Background())
	return r.result(StatusFailed, summary), ErrMaxIterations
}

func (r *run) timeout() (*Result, error) {
	r.persist(context.Background())
	text := fmt.Sprintf("Timed out after %s. %s", r.cfg.Timeout, tallyText(r.sess.ToolCallTally))
	return r.result(StatusTimeout, text), ErrTimeout
}

func (r *run) abort() (*Result, error) {
	r.persist(context.Background())
	return r.result(StatusAborted, ""), ErrAborted
}

func (r *run) fail(err error) (*Result, error) {
	r.persist(context.Background())
	return r.result(StatusFailed, ""), err
}

func (r *run) persist(ctx context.Context) {
	if err := r.transcript.Persist(ctx, r.cfg.MemoryKey, r.sess.History); err != nil {
		r.logger.Warn("flow.persist.failed", "memory_key", r.cfg.MemoryKey, "error", err.Error())
	}
}

func (f *Flow) buildProvider(ctx context.Context, cfg Config) (model.Provider, error) {
	if f.opts.Provider != nil {
		return f.opts.Provider, nil
	}
	if f.opts.Factory == nil {
		return nil, errors.New("flow: no provider or provider factory configured")
	}
	return f.opts.Factory.New(ctx, model.Config{
		Provider:      cfg.Provider,
		Model:         cfg.Model,
		FallbackModel: cfg.FallbackModel,
		Settings:      f.opts.Settings,
	})
}

func tallyText(t core.ToolCallTally) string {
	return fmt.Sprintf("%d of %d tool calls succeeded.", t.Succeeded, t.Total)
}

func logModelCall(logger logging.Logger, modelID string, tokens int, dur time.Duration, err error) {
	if sl, ok := logger.(*logging.StructuredLogger); ok {
		sl.LogModelCall(modelID, tokens, dur, err)
		return
	}
	if err != nil {
		logger.Error("model.call.failed", "model", modelID, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return
	}
	logger.Debug("model.call.completed", "model", modelID, "token_count", tokens, "duration_ms", dur.Milliseconds())
}

func logRun(logger logging.Logger, res *Result, err error) {
	if sl, ok := logger.(*logging.StructuredLogger); ok {
		sl.LogRun(string(res.Status), res.Iterations, res.ToolCalls.Total, res.Duration, err)
		return
	}
	if err != nil {
		logger.Warn("flow.run.failed", "outcome", res.Status, "iterations", res.Iterations, "error", errString(err))
		return
	}
	logger.Info("flow.run.completed", "outcome", res.Status, "iterations", res.Iterations)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
