// Package config loads, normalizes, and validates ytreport configuration.
//
// Configuration lives in a TOML file (default ~/.config/ytreport/config.toml,
// falling back to ./ytreport.toml). Missing files are not an error: defaults
// apply and API keys may come from YTREPORT_ANALYSIS_API_KEY,
// YTREPORT_REPORT_API_KEY or OPENROUTER_API_KEY. Load expands "~" in paths,
// fills empty fields with defaults, and rejects values the daemon cannot run
// with. The [analysis] and [report] sections inherit unset connection fields
// from [llm].
package config
