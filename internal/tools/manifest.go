package tools

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"reelforge/internal/adapter"
	"reelforge/internal/config"
	"reelforge/internal/services"
)

// Command describes how to run one tool locally.
type Command struct {
	Command        string            `yaml:"command"`
	Args           []string          `yaml:"args"`
	Env            map[string]string `yaml:"env"`
	Dir            string            `yaml:"dir"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
}

// Manifest maps tool names to commands.
type Manifest struct {
	Tools map[string]Command `yaml:"tools"`
}

// LoadManifest reads and validates a YAML tool manifest.
func LoadManifest(path string) (Manifest, error) {
	var manifest Manifest
	expanded, err := config.ExpandPath(strings.TrimSpace(path))
	if err != nil {
		return manifest, services.Wrap(services.ErrConfiguration, "tools", "load manifest", "expand path", err)
	}
	if expanded == "" {
		return manifest, services.Wrap(services.ErrConfiguration, "tools", "load manifest", "tools.manifest_path is required for the command executor", nil)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return manifest, services.Wrap(services.ErrConfiguration, "tools", "load manifest", expanded, err)
	}
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return manifest, services.Wrap(services.ErrConfiguration, "tools", "load manifest", "parse "+expanded, err)
	}
	if err := manifest.Validate(); err != nil {
		return manifest, err
	}
	return manifest, nil
}

// Validate checks that every pipeline tool has a command.
func (m Manifest) Validate() error {
	var missing []string
	for _, spec := range adapter.Plan() {
		cmd, ok := m.Tools[spec.ToolName]
		if !ok || strings.TrimSpace(cmd.Command) == "" {
			missing = append(missing, spec.ToolName)
		}
	}
	for name, cmd := range m.Tools {
		if cmd.TimeoutSeconds < 0 {
			return services.Wrap(services.ErrConfiguration, "tools", "validate manifest", fmt.Sprintf("%s: timeout_seconds must be >= 0", name), nil)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return services.Wrap(services.ErrConfiguration, "tools", "validate manifest", "missing commands for "+strings.Join(missing, ", "), nil)
	}
	return nil
}
