package testsupport

import (
	"path/filepath"
	"testing"

	"reelforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Workflow.StreamGraceSeconds = 0
	cfgVal.Workflow.Reflections = false
	cfgVal.Tracing.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIToken sets the bearer token required by the API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithWatermark sets the watermark text, which also requests a watermark.
func WithWatermark(text string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Effects.WatermarkText = text
	}
}

// WithReflections toggles step reflections.
func WithReflections(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Reflections = enabled
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
