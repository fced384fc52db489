// Package model defines the provider-agnostic abstractions and concrete
// helpers for talking to generative backends inside agentloop.
//
// Core goals:
//   - One Provider interface normalizing every backend into core.Turn values
//   - Typed failures (rate limit, server, auth, empty) that drive retry policy
//   - Same-provider model fallback with exponential backoff (Retrier)
//   - Lightweight scripted providers for tests (ScriptedProvider)
//
// Backends (OpenAI, Anthropic, Gemini) live in sub-packages and register a
// Constructor with a Factory so higher layers stay decoupled from vendor SDKs.
package model
