package model

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// Config captures the settings needed to build a Provider for one backend.
type Config struct {
	Provider      string
	Model         string // Default model id; empty selects the adapter default
	FallbackModel string // Empty selects the adapter default fallback
	BaseURL       string
	MaxTokens     int64
	HTTPClient    *http.Client
	Settings      core.Settings
}

// Constructor builds a Provider from a Config.
type Constructor func(ctx context.Context, cfg Config) (Provider, error)

// Factory holds the registered provider constructors.
type Factory struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{constructors: make(map[string]Constructor)}
}

// Register attaches or replaces the constructor for a provider name.
func (f *Factory) Register(name string, c Constructor) {
	if c == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = c
}

// Names lists the registered provider names in sorted order.
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.constructors))
	for n := range f.constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds a provider through the constructor registered for cfg.Provider.
func (f *Factory) New(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("model provider not specified")
	}
	f.mu.RLock()
	c := f.constructors[cfg.Provider]
	f.mu.RUnlock()
	if c == nil {
		return nil, fmt.Errorf("model provider %q is not registered", cfg.Provider)
	}
	if cfg.Settings == nil {
		cfg.Settings = core.EnvSettings{}
	}
	return c(ctx, cfg)
}
