package flow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/agentloop/attachment"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/tool"
)

// DefaultAskUserTool is the interaction tool used for clarifying questions.
const DefaultAskUserTool = "ask_user"

// Dispatcher executes one batch of tool calls. Implementations must:
//   - Return exactly one CallOutcome per incoming call, in call order
//   - Never panic (recover internally and report an error outcome)
//   - Not short-circuit on the first failure
type Dispatcher interface {
	Dispatch(ctx context.Context, calls []core.FunctionCall) Batch
}

// CallOutcome is the settled result of one tool call.
type CallOutcome struct {
	Response core.FunctionResponse
	// Attachments resolved from the result, delivered before Response.
	Attachments []core.InlineDataPart
	Duration    time.Duration
}

// Batch holds the outcomes of one dispatch in call order.
type Batch struct {
	Outcomes []CallOutcome
}

// Turn builds the user turn fed back to the provider. Attachments of a call
// are spliced immediately before its result.
func (b Batch) Turn() core.Turn {
	parts := make([]core.Part, 0, len(b.Outcomes))
	for _, o := range b.Outcomes {
		for _, a := range o.Attachments {
			parts = append(parts, a)
		}
		parts = append(parts, core.FunctionResponsePart{FunctionResponse: o.Response})
	}
	return core.Turn{Role: core.RoleUser, Parts: parts}
}

// Failed returns the number of failed calls.
func (b Batch) Failed() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Response.Failed() {
			n++
		}
	}
	return n
}

// DispatcherOptions configures the default parallel dispatcher.
type DispatcherOptions struct {
	// Executor runs tools by name. Defaults to the registry when it holds in-process tools.
	Executor core.ToolExecutor
	// Registry supplies declarations for validation; a nil registry disables
	// the not-found and schema checks.
	Registry *tool.Registry
	// Resolver turns ask-user attachments into inline data; nil drops them.
	Resolver    *attachment.Resolver
	AskUserTool string
	// ToolTimeout bounds each call (default 60s, <=0 disables).
	ToolTimeout time.Duration
	// MaxParallel bounds concurrent calls; 0 runs the whole batch at once.
	MaxParallel int
	Logger      logging.Logger
}

// ParallelDispatcher runs every call of a batch concurrently with per-call
// failure isolation.
type ParallelDispatcher struct {
	opts DispatcherOptions
}

var _ Dispatcher = (*ParallelDispatcher)(nil)

// NewDispatcher constructs the default dispatcher.
func NewDispatcher(optFns ...func(o *DispatcherOptions)) *ParallelDispatcher {
	opts := DispatcherOptions{
		AskUserTool: DefaultAskUserTool,
		ToolTimeout: 60 * time.Second,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Executor == nil && opts.Registry != nil {
		opts.Executor = opts.Registry
	}
	return &ParallelDispatcher{opts: opts}
}

// Dispatch implements Dispatcher. It returns only after every call settled.
func (d *ParallelDispatcher) Dispatch(ctx context.Context, calls []core.FunctionCall) Batch {
	n := len(calls)
	batch := Batch{Outcomes: make([]CallOutcome, n)}
	if n == 0 {
		return batch
	}

	maxPar := d.opts.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, fc core.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()
			batch.Outcomes[idx] = d.execute(ctx, fc)
		}(i, calls[i])
	}

	wg.Wait()

	d.opts.Logger.Debug(
		"flow.tools.batch.complete",
		"count", n,
		"failed", batch.Failed(),
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return batch
}

func (d *ParallelDispatcher) execute(ctx context.Context, fc core.FunctionCall) CallOutcome {
	start := time.Now()
	result, err := d.run(ctx, fc)
	dur := time.Since(start)

	logToolCall(d.opts.Logger, fc.Name, dur, err)

	out := CallOutcome{
		Response: core.FunctionResponse{ID: fc.ID, Name: fc.Name},
		Duration: dur,
	}
	if err != nil {
		out.Response.Error = err.Error()
		return out
	}

	if fc.Name == d.opts.AskUserTool {
		result, out.Attachments = d.splitAttachments(ctx, result)
	}
	out.Response.Response = result
	return out
}

// run validates the call and executes it under the per-call timeout.
func (d *ParallelDispatcher) run(ctx context.Context, fc core.FunctionCall) (any, error) {
	if d.opts.Registry != nil {
		decl, ok := d.opts.Registry.Lookup(fc.Name)
		if !ok {
			return nil, tool.NewToolError(fc.Name, fmt.Sprintf("tool %q is not declared", fc.Name), tool.CodeNotFound)
		}
		if err := util.ValidateParameters(fc.Args, decl.Parameters); err != nil {
			return nil, &tool.ToolError{
				Tool:    fc.Name,
				Message: fmt.Sprintf("parameter validation failed: %v", err),
				Code:    tool.CodeValidation,
				Details: err,
			}
		}
	}
	if d.opts.Executor == nil {
		return nil, tool.NewToolError(fc.Name, "no tool executor configured", tool.CodeNotFound)
	}

	callCtx := ctx
	if d.opts.ToolTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.opts.ToolTimeout)
		defer cancel()
	}

	type result struct {
		value any
		err   error
	}
	done := make(chan result, 1)

	go func() {
		var r result
		defer func() {
			if rec := recover(); rec != nil { // panic safety
				d.opts.Logger.Error("flow.tool.panic", "tool", fc.Name, "recover", rec, "stack", string(debug.Stack()))
				r = result{err: tool.NewToolError(fc.Name, fmt.Sprintf("panic: %v", rec), tool.CodePanic)}
			}
			done <- r
		}()
		args := fc.Args
		if args == nil {
			args = map[string]any{}
		}
		r.value, r.err = d.opts.Executor.Execute(callCtx, fc.Name, args)
	}()

	// The executor goroutine is not killed on timeout; its result is discarded.
	var r result
	select {
	case r = <-done:
	case <-callCtx.Done():
		r = result{err: callCtx.Err()}
	}

	if r.err == nil {
		return r.value, nil
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, tool.NewToolError(fc.Name, fmt.Sprintf("timed out after %s", d.opts.ToolTimeout), tool.CodeTimeout)
	}
	return nil, tool.AsToolError(fc.Name, r.err, tool.CodeExecution)
}

// splitAttachments separates the answer text from attachment references in
// an ask-user result of the form {"answer"|"text": ..., "attachments": [...]}.
func (d *ParallelDispatcher) splitAttachments(ctx context.Context, result any) (any, []core.InlineDataPart) {
	m, ok := result.(map[string]any)
	if !ok {
		return result, nil
	}
	refs, ok := m["attachments"]
	if !ok {
		return result, nil
	}

	var parts []core.InlineDataPart
	if d.opts.Resolver != nil {
		parts = d.opts.Resolver.ResolveValue(ctx, refs)
	}

	for _, key := range []string{"answer", "text", "response", "message"} {
		if s, ok := m[key].(string); ok {
			return s, parts
		}
	}
	return "", parts
}

func logToolCall(logger logging.Logger, name string, dur time.Duration, err error) {
	if sl, ok := logger.(*logging.StructuredLogger); ok {
		sl.LogToolCall(name, dur, err)
		return
	}
	if err != nil {
		logger.Warn("tool.call.failed", "tool_name", name, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return
	}
	logger.Info("tool.call.completed", "tool_name", name, "duration_ms", dur.Milliseconds())
}
