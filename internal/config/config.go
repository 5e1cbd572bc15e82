package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	OutputDir string `toml:"output_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Workflow contains pipeline orchestration settings.
type Workflow struct {
	// DefaultSpanSeconds is the segment length assumed when a tool reports no usable end time.
	DefaultSpanSeconds float64 `toml:"default_span_seconds"`
	// StreamGraceSeconds is how long a progress stream stays open after a terminal event.
	StreamGraceSeconds int `toml:"stream_grace_seconds"`
	// SubscriberQueueLimit caps undelivered events per subscriber before the oldest
	// non-terminal events are dropped.
	SubscriberQueueLimit int  `toml:"subscriber_queue_limit"`
	Reflections          bool `toml:"reflections"`
}

// Effects contains render-time effect settings consumed by the fallback planner.
type Effects struct {
	FadesEnabled           bool    `toml:"fades_enabled"`
	FadeOutEnabled         bool    `toml:"fade_out_enabled"`
	FadeSeconds            float64 `toml:"fade_seconds"`
	MinFadeDurationSeconds float64 `toml:"min_fade_duration_seconds"`
	WatermarkText          string  `toml:"watermark_text"`
}

// Tools contains step tool invocation settings.
type Tools struct {
	Executor              string `toml:"executor"`
	BaseURL               string `toml:"base_url"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	ManifestPath          string `toml:"manifest_path"`
	BreakerMaxFailures    int    `toml:"breaker_max_failures"`
	BreakerTimeoutSeconds int    `toml:"breaker_timeout_seconds"`
}

// LLM contains connection settings for step reflections.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Errors         bool   `toml:"errors"`
}

// API contains HTTP API limits.
type API struct {
	RequestsPerMinute int `toml:"requests_per_minute"`
	Burst             int `toml:"burst"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	// RetentionDays prunes per-run log and trace files older than this many
	// days at daemon start. Zero keeps everything.
	RetentionDays int `toml:"retention_days"`
}

// Tracing contains OpenTelemetry exporter settings.
type Tracing struct {
	Enabled  bool   `toml:"enabled"`
	Exporter string `toml:"exporter"`
}

// Config encapsulates all configuration values for reelforge.
//
// Configuration sections by subsystem:
//   - Paths: state, log and output directories plus the API bind address
//   - Workflow: orchestration defaults and progress stream behaviour
//   - Effects: fades and watermark preferences for the render step
//   - Tools: how step tools are invoked (http or command)
//   - LLM: connection settings for step reflections
//   - Notifications: ntfy push notification settings
//   - API: job creation rate limits
//   - Logging: log format and level
//   - Tracing: span export
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workflow      Workflow      `toml:"workflow"`
	Effects       Effects       `toml:"effects"`
	Tools         Tools         `toml:"tools"`
	LLM           LLM           `toml:"llm"`
	Notifications Notifications `toml:"notifications"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
	Tracing       Tracing       `toml:"tracing"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reelforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.OutputDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DaemonLockPath returns the single-instance lock file location.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.StateDir, "reelforge.lock")
}

// CurrentLogPath returns the link that always points at the running daemon's
// log file.
func (c *Config) CurrentLogPath() string {
	return filepath.Join(c.Paths.LogDir, "reelforge.log")
}

// JobStorePath returns the SQLite job history database location.
func (c *Config) JobStorePath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// FFprobeBinary returns the ffprobe executable name used for duration probes.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// StreamGrace returns the post-terminal progress stream grace period.
func (c *Config) StreamGrace() time.Duration {
	return time.Duration(c.Workflow.StreamGraceSeconds) * time.Second
}

// ToolTimeout returns the per-call tool timeout.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Tools.RequestTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the LLM settings used by the reflection summarizer.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the LLM connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}
