// Package api defines wire-format types, converters and the HTTP client for
// the daemon API. It translates workflow runs and stored videos and reports
// into transport-friendly DTOs so the CLI and other consumers can render them
// without coupling to internal types.
//
// # Key Types
//
// Run: a workflow run with per-stage status, the attempt history and, in
// detail views, the run context.
//
// Video / Report: stored analysis and generated report records.
//
// WorkflowStatus / DaemonStatus: worker pool state, run counts, stage health
// and database health.
//
// # Converters
//
// FromRunState, FromVideo and FromReport accept WithDetail to include bodies
// that list endpoints omit. StageHealthSlice orders the stage health map.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Internal enums are exposed as lowercase
// strings. Timestamps use RFC3339 with milliseconds. Error responses carry
// the stable error kind and an operator hint.
package api
