// Package main hosts the ytreport CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon in the foreground (serve),
// launches and stops it in the background, and translates the remaining
// invocations into HTTP calls against the daemon API: submitting videos and
// reports, inspecting runs, and listing stored analyses and reports.
//
// Keep this package lean: new behavior belongs in the internal packages and
// is surfaced here through commands or flags.
package main
