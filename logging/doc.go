// Package logging provides the Logger boundary and a slog backed
// implementation.
//
// StructuredLogger is scoped per run (ForRun) and per component
// (WithComponent) and records model calls, tool calls and run outcomes as
// typed events. NoOpLogger is the default.
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	loop, err := agentloop.New(func(o *agentloop.Options) { o.Logger = logger })
package logging
