// Package daemon coordinates the long-running ytreport process.
//
// It wires the result store, the pipeline service and its worker pool, and
// the HTTP API into a single lifecycle with flock-based locking to prevent
// multiple instances sharing one database. The API submits runs, reports run
// progress, and lists, reads and deletes stored videos and reports.
//
// Keep orchestration here: stage behavior lives in the pipeline, analysis and
// report packages while the daemon focuses on startup, shutdown, and the
// transport surface.
package daemon
