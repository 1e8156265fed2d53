package preflight

import (
	"context"

	"ytreport/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckYouTube(ctx, cfg.YouTube),
		CheckLLM(ctx, "Analysis LLM", cfg.AnalysisLLM()),
	}

	// The report model is only probed separately when it talks to a
	// different endpoint or with a different key.
	if reportUsesDistinctLLM(cfg) {
		results = append(results, CheckLLM(ctx, "Report LLM", cfg.ReportLLM()))
	}
	return results
}

func reportUsesDistinctLLM(cfg *config.Config) bool {
	analysis := cfg.AnalysisLLM()
	report := cfg.ReportLLM()
	return analysis.APIKey != report.APIKey || analysis.BaseURL != report.BaseURL
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
