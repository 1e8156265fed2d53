// Package preflight provides readiness checks for the external services and
// filesystem paths ytreport depends on.
//
// These checks run in two contexts:
//   - "ytreport status" calls RunAll to show whether the daemon could do
//     useful work with the current configuration.
//   - The pipeline surfaces CheckYouTube and CheckLLMKey as stage health on
//     GET /api/status.
//
// LLM checks issue one real completion, so they are not run on every status
// poll by the daemon; only the key check is.
package preflight
