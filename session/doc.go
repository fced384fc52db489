// Package session implements the transcript manager: it seeds a live history
// from a persisted per-key transcript, persists the lossy role/text summary at
// termination and extracts the final structured output of a run.
//
// Only role and flattened text survive persistence. Tool calls, tool results
// and inline attachments are dropped, so a resumed session sees what was said
// but not which tools were invoked.
package session
