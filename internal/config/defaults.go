package config

const (
	defaultConfigPath             = "~/.config/reelforge/config.toml"
	defaultStateDir               = "~/.local/share/reelforge"
	defaultLogDir                 = "~/.local/share/reelforge/logs"
	defaultOutputDir              = "~/.local/share/reelforge/output"
	defaultAPIBind                = "127.0.0.1:7490"
	defaultSpanSeconds            = 10.0
	defaultStreamGraceSeconds     = 5
	defaultSubscriberQueueLimit   = 256
	defaultFadeSeconds            = 1.0
	defaultMinFadeDurationSeconds = 3.0
	defaultToolExecutor           = ExecutorHTTP
	defaultToolBaseURL            = "http://127.0.0.1:7491/tools"
	defaultToolTimeoutSeconds     = 600
	defaultBreakerMaxFailures     = 5
	defaultBreakerTimeoutSeconds  = 60
	defaultLLMBaseURL             = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel               = "google/gemini-3-flash-preview"
	defaultLLMReferer             = "https://github.com/reelforge/reelforge"
	defaultLLMTitle               = "reelforge step reflections"
	defaultLLMTimeoutSeconds      = 30
	defaultNotifyTimeout          = 10
	defaultRequestsPerMinute      = 30
	defaultBurst                  = 5
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
	defaultTracingExporter        = TracingExporterStdout
)

// Tool executor kinds.
const (
	ExecutorHTTP    = "http"
	ExecutorCommand = "command"
)

// Tracing exporter kinds.
const (
	TracingExporterStdout = "stdout"
	TracingExporterNone   = "none"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			OutputDir: defaultOutputDir,
			APIBind:   defaultAPIBind,
		},
		Workflow: Workflow{
			DefaultSpanSeconds:   defaultSpanSeconds,
			StreamGraceSeconds:   defaultStreamGraceSeconds,
			SubscriberQueueLimit: defaultSubscriberQueueLimit,
			Reflections:          true,
		},
		Effects: Effects{
			FadesEnabled:           true,
			FadeOutEnabled:         true,
			FadeSeconds:            defaultFadeSeconds,
			MinFadeDurationSeconds: defaultMinFadeDurationSeconds,
		},
		Tools: Tools{
			Executor:              defaultToolExecutor,
			BaseURL:               defaultToolBaseURL,
			RequestTimeoutSeconds: defaultToolTimeoutSeconds,
			BreakerMaxFailures:    defaultBreakerMaxFailures,
			BreakerTimeoutSeconds: defaultBreakerTimeoutSeconds,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Completed:      true,
			Errors:         true,
		},
		API: API{
			RequestsPerMinute: defaultRequestsPerMinute,
			Burst:             defaultBurst,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Tracing: Tracing{
			Exporter: defaultTracingExporter,
		},
	}
}
