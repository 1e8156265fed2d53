package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ytreport/internal/analysis"
	"ytreport/internal/config"
	"ytreport/internal/preflight"
	"ytreport/internal/report"
	"ytreport/internal/services/llm"
	"ytreport/internal/store"
	"ytreport/internal/workflow"
	"ytreport/internal/youtube"
)

// RetryPolicy converts the [retry] section into a stage policy.
func RetryPolicy(cfg *config.Config) workflow.RetryPolicy {
	return workflow.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay(),
		MaxDelay:    cfg.RetryMaxDelay(),
	}
}

// New wires the production adapters, both graphs, an executor and a worker
// pool around st. The returned service is not started.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) (*Service, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("pipeline requires config and store")
	}

	yt, err := youtube.NewClient(cfg.YouTube, youtube.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	analysisLLM := cfg.AnalysisLLM()
	reportLLM := cfg.ReportLLM()

	bindings := Bindings{
		Transcripts:      yt,
		Analyzer:         analysis.New(llm.NewClient(clientConfig(analysisLLM)), analysisLLM, logger),
		Reports:          report.New(llm.NewClient(clientConfig(reportLLM)), reportLLM, logger),
		Results:          st,
		Retry:            RetryPolicy(cfg),
		TranscriptHealth: yt.HealthCheck,
		AnalysisHealth:   keyCheck("analysis model", analysisLLM),
		ReportHealth:     keyCheck("report model", reportLLM),
	}
	graphs, err := Graphs(bindings)
	if err != nil {
		return nil, fmt.Errorf("build graphs: %w", err)
	}
	exec, err := workflow.NewExecutor(st, graphs,
		workflow.WithLogger(logger),
		workflow.WithStageLogLevels(cfg.Logging.StageOverrides),
	)
	if err != nil {
		return nil, fmt.Errorf("build executor: %w", err)
	}
	return NewService(workflow.NewManager(cfg, st, exec, logger)), nil
}

func clientConfig(cfg config.LLMConfig) llm.Config {
	return llm.Config{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Model:             cfg.Model,
		Referer:           cfg.Referer,
		Title:             cfg.Title,
		TimeoutSeconds:    cfg.TimeoutSeconds,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}
}

func keyCheck(name string, cfg config.LLMConfig) func(context.Context) error {
	return func(context.Context) error {
		if result := preflight.CheckLLMKey(name, cfg); !result.Passed {
			return errors.New(result.Detail)
		}
		return nil
	}
}
