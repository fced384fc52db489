package model

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/agentloop/logging"
)

// RetryOptions configures a Retrier.
type RetryOptions struct {
	// FallbackModel is used for attempts following a rate limit. Empty disables fallback.
	FallbackModel string
	// MaxAttempts bounds the total number of calls (default 3).
	MaxAttempts int
	// BaseDelay is the first backoff delay, doubled after every attempt (default 1s).
	BaseDelay time.Duration
	// Sleep waits between attempts; replaced in tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger logging.Logger
}

// Retrier wraps a Provider with bounded retries and same-provider model fallback.
type Retrier struct {
	next Provider
	opts RetryOptions
}

var _ Provider = (*Retrier)(nil)

// NewRetrier wraps next with retry / fallback behavior.
func NewRetrier(next Provider, optFns ...func(o *RetryOptions)) *Retrier {
	opts := RetryOptions{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Sleep:       sleepContext,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Retrier{next: next, opts: opts}
}

// Call implements Provider. Rate limits switch req.Model to the fallback for
// the remaining attempts; server errors and empty responses retry the same
// model. Auth, bad request, missing credential and context errors return at once.
func (r *Retrier) Call(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	delay := r.opts.BaseDelay
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := r.next.Call(ctx, req)
		if err == nil {
			if resp.ModelUsed == "" {
				resp.ModelUsed = req.Model
			}
			return resp, nil
		}
		lastErr = err
		if attempt == r.opts.MaxAttempts || !Retryable(err) {
			break
		}
		if errors.Is(err, ErrRateLimited) && r.opts.FallbackModel != "" && req.Model != r.opts.FallbackModel {
			r.opts.Logger.Warn("model.fallback", "from", req.Model, "to", r.opts.FallbackModel)
			req.Model = r.opts.FallbackModel
		}
		r.opts.Logger.Warn("model.retry", "attempt", attempt, "model", req.Model, "delay_ms", delay.Milliseconds(), "error", err.Error())
		if err := r.opts.Sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}
	return nil, lastErr
}

// Info implements Provider.
func (r *Retrier) Info() Info { return r.next.Info() }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
