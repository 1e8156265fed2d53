// Package workflow runs submitted work through validated stage graphs.
//
// A Graph is built once from a GraphSpec and validated up front: unique stage
// names, known edge targets, no cycles, every stage reachable from the entry,
// and every input key written by a seed or by an ancestor stage. Structural
// problems are reported as *GraphConfigurationError before any run starts.
//
// Each run owns a RunState: an insertion-ordered, write-once RunContext, the
// per-stage progress map and the append-only attempt history. The Executor
// advances a RunState stage by stage, retrying transient failures with an
// exponential backoff, skipping stages whose inputs are absent, degrading the
// run when an optional stage fails, and checkpointing after every step so a
// resumed run never re-invokes a completed stage.
//
// The Manager owns the worker pool. Pending runs are claimed from the store in
// submission order, kept alive with heartbeats, and reclaimed when a previous
// process died mid-run. Cancellation is cooperative: it is checked before each
// stage and each backoff wait, and the result of a call already in flight is
// discarded.
package workflow
