package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited signals quota exhaustion; the Retrier switches to the fallback model.
	ErrRateLimited = errors.New("rate limited")
	// ErrServer signals a transient backend failure.
	ErrServer = errors.New("server error")
	// ErrAuth signals rejected credentials. Never retried.
	ErrAuth = errors.New("authentication failed")
	// ErrEmptyResponse signals an answer without text or tool calls.
	ErrEmptyResponse = errors.New("empty response")
	// ErrBadRequest signals a request the backend refused to process. Never retried.
	ErrBadRequest = errors.New("bad request")
	// ErrMissingCredential signals that no API key could be found.
	ErrMissingCredential = errors.New("missing credential")
)

// Error is the typed failure returned by provider adapters.
type Error struct {
	Kind       error  // One of the Err* sentinels above
	Provider   string // "openai", "anthropic", "gemini"
	Model      string
	StatusCode int
	Hint       string // Remediation hint shown to operators
	Err        error  // Underlying SDK error, if any
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	if e.Model != "" {
		msg = fmt.Sprintf("%s (model %s)", msg, e.Model)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s [status %d]", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Hint != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Hint)
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying error to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds a typed provider error.
func NewError(kind error, provider, modelID string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Model: modelID, Err: err}
}

// MissingCredentialError reports an absent API key with a remediation hint.
func MissingCredentialError(provider, settingKey string) *Error {
	return &Error{
		Kind:     ErrMissingCredential,
		Provider: provider,
		Hint:     fmt.Sprintf("set %s in the environment or settings store", settingKey),
	}
}

// KindForStatus maps an HTTP status code to an error kind.
func KindForStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status >= 500:
		return ErrServer
	case status >= 400:
		return ErrBadRequest
	default:
		return ErrServer
	}
}

// FromStatus wraps an SDK error carrying an HTTP status code.
func FromStatus(provider, modelID string, status int, err error) *Error {
	e := NewError(KindForStatus(status), provider, modelID, err)
	e.StatusCode = status
	return e
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServer) || errors.Is(err, ErrEmptyResponse)
}
