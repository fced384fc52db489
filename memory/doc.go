// Package memory contains concrete implementations of the memory contracts
// declared in core: a semantic core.MemoryStore and core.TranscriptStore
// backends for the per-key persisted transcript.
//
// Depend on the core interfaces in your code and select an implementation at
// wiring time.
package memory
