package config

const (
	defaultConfigPath            = "~/.config/ytreport/config.toml"
	defaultDataDir               = "~/.local/share/ytreport"
	defaultLogDir                = "~/.local/share/ytreport/logs"
	defaultAPIBind               = "127.0.0.1:7497"
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel              = "anthropic/claude-3-opus"
	defaultLLMReferer            = "https://github.com/ytreport/ytreport"
	defaultLLMTitle              = "ytreport"
	defaultLLMTimeoutSeconds     = 120
	defaultAnalysisTitle         = "ytreport analysis"
	defaultAnalysisTemperature   = 0.2
	defaultAnalysisMaxTokens     = 4000
	defaultReportTitle           = "ytreport report"
	defaultReportModel           = "openai/o1-mini"
	defaultReportTemperature     = 0.3
	defaultReportMaxTokens       = 4000
	defaultYouTubeLanguage       = "ja"
	defaultYouTubeTimeoutSeconds = 30
	defaultYouTubeBaseURL        = "https://www.youtube.com"
	defaultYouTubeUserAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	defaultWorkers               = 2
	defaultPollInterval          = 5
	defaultErrorRetryInterval    = 10
	defaultHeartbeatInterval     = 15
	defaultHeartbeatTimeout      = 120
	defaultRetryMaxAttempts      = 3
	defaultRetryBaseDelayMS      = 1000
	defaultRetryMaxDelayMS       = 30000
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Analysis: Analysis{
			Temperature: defaultAnalysisTemperature,
			MaxTokens:   defaultAnalysisMaxTokens,
		},
		Report: Report{
			Model:       defaultReportModel,
			Temperature: defaultReportTemperature,
			MaxTokens:   defaultReportMaxTokens,
		},
		YouTube: YouTube{
			Language:       defaultYouTubeLanguage,
			TimeoutSeconds: defaultYouTubeTimeoutSeconds,
			BaseURL:        defaultYouTubeBaseURL,
			UserAgent:      defaultYouTubeUserAgent,
		},
		Workflow: Workflow{
			Workers:            defaultWorkers,
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Retry: Retry{
			MaxAttempts: defaultRetryMaxAttempts,
			BaseDelayMS: defaultRetryBaseDelayMS,
			MaxDelayMS:  defaultRetryMaxDelayMS,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
