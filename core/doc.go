// Package core provides the foundational domain types and collaborator
// interfaces shared by every agentloop package. It defines:
//
//   - Turns and Parts (the provider-neutral transcript representation)
//   - Session (per-invocation mutable loop state)
//   - ToolDeclaration and ToolExecutor (the tool boundary)
//   - MemoryStore, TranscriptStore, VariableStore and Settings (external collaborators)
//
// The package intentionally keeps implementation concerns (providers, the
// orchestration loop, concrete stores) out of scope, exposing small
// interfaces so applications can plug their own backends.
package core
