package core

import (
	"os"
)

// VariableStore is the variable binding boundary. Tools running in one batch
// may write concurrently, so implementations must be safe for concurrent use.
type VariableStore interface {
	Get(name string) (any, bool)
	Set(name string, value any)
	// ResolveString substitutes {{name}} / {{a.b}} placeholders.
	ResolveString(template string) string
	// ResolveValue looks up a dot separated path such as "user.profile.name".
	ResolveValue(path string) (any, bool)
	// Snapshot returns a shallow copy of all bound variables.
	Snapshot() map[string]any
}

// Settings looks up configuration values such as provider credentials.
type Settings interface {
	Lookup(key string) (string, bool)
}

// EnvSettings reads settings from the process environment.
type EnvSettings struct{}

// Lookup implements Settings.
func (EnvSettings) Lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// MapSettings is a static Settings implementation, handy for tests.
type MapSettings map[string]string

// Lookup implements Settings.
func (m MapSettings) Lookup(key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
