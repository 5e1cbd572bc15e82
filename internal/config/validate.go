package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateEffects(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateTracing(); err != nil {
		return err
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.DefaultSpanSeconds <= 0 {
		return errors.New("workflow.default_span_seconds must be positive")
	}
	if c.Workflow.StreamGraceSeconds < 0 {
		return errors.New("workflow.stream_grace_seconds must be >= 0")
	}
	if c.Workflow.SubscriberQueueLimit < 1 {
		return errors.New("workflow.subscriber_queue_limit must be >= 1")
	}
	return nil
}

func (c *Config) validateEffects() error {
	if c.Effects.FadeSeconds <= 0 {
		return errors.New("effects.fade_seconds must be positive")
	}
	if c.Effects.MinFadeDurationSeconds < 0 {
		return errors.New("effects.min_fade_duration_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateTools() error {
	switch c.Tools.Executor {
	case ExecutorHTTP:
		if c.Tools.BaseURL == "" {
			return errors.New("tools.base_url must be set when tools.executor is \"http\"")
		}
		parsed, err := url.Parse(c.Tools.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("tools.base_url %q is not an absolute URL", c.Tools.BaseURL)
		}
	case ExecutorCommand:
		if strings.TrimSpace(c.Tools.ManifestPath) == "" {
			return errors.New("tools.manifest_path must be set when tools.executor is \"command\"")
		}
	default:
		return fmt.Errorf("tools.executor %q is not supported (use %q or %q)", c.Tools.Executor, ExecutorHTTP, ExecutorCommand)
	}
	return ensurePositiveMap(map[string]int{
		"tools.request_timeout_seconds": c.Tools.RequestTimeoutSeconds,
		"tools.breaker_max_failures":    c.Tools.BreakerMaxFailures,
		"tools.breaker_timeout_seconds": c.Tools.BreakerTimeoutSeconds,
	})
}

func (c *Config) validateAPI() error {
	if c.API.RequestsPerMinute < 0 {
		return errors.New("api.requests_per_minute must be >= 0")
	}
	if c.API.RequestsPerMinute > 0 && c.API.Burst < 1 {
		return errors.New("api.burst must be >= 1 when api.requests_per_minute is set")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateTracing() error {
	switch c.Tracing.Exporter {
	case TracingExporterStdout, TracingExporterNone:
		return nil
	default:
		return fmt.Errorf("tracing.exporter %q is not supported", c.Tracing.Exporter)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
