package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"reelforge/internal/adapter"
	"reelforge/internal/config"
	"reelforge/internal/services"
)

// Executor runs one step tool and returns its raw output.
type Executor interface {
	Execute(ctx context.Context, toolName string, args adapter.StepArgs) (json.RawMessage, error)
}

// New builds the executor selected by cfg.Tools.Executor.
func New(cfg *config.Config, logger *slog.Logger) (Executor, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "tools", "init", "config is required", nil)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Tools.Executor)) {
	case config.ExecutorHTTP, "":
		return NewHTTPExecutor(cfg.Tools, logger), nil
	case config.ExecutorCommand:
		manifest, err := LoadManifest(cfg.Tools.ManifestPath)
		if err != nil {
			return nil, err
		}
		return NewCommandExecutor(manifest, cfg.ToolTimeout(), logger), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "tools", "init", fmt.Sprintf("unknown executor %q", cfg.Tools.Executor), nil)
	}
}

// Failure codes a tool may report in an error body. They map onto the
// services markers so the terminal event carries the tool's own diagnosis.
var reportedCodes = map[string]error{
	services.CodeNoRelevantContent: services.ErrNoInputAvailable,
	services.CodeMissingFile:       services.ErrNotFound,
	services.CodeEncodingFailure:   services.ErrEncoding,
	services.CodeInvalidOutput:     services.ErrValidation,
	services.CodeTransient:         services.ErrTransient,
	services.CodeToolFailure:       services.ErrToolExecution,
}

// toolError is the optional error envelope tools return.
type toolError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e toolError) text() string {
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(e.Error)
}

// classifyReported builds the error for a tool-reported failure. fallback is
// used when the body carries no recognised code.
func classifyReported(toolName, operation string, body []byte, fallback error, cause error) error {
	var envelope toolError
	_ = json.Unmarshal(body, &envelope)
	message := envelope.text()
	if message == "" {
		message = snippet(body)
	}
	marker := fallback
	code := strings.ToLower(strings.TrimSpace(envelope.Code))
	if mapped, ok := reportedCodes[code]; ok {
		marker = mapped
	}
	err := services.Wrap(marker, toolName, operation, message, cause)
	if _, ok := reportedCodes[code]; ok {
		err = services.WithCode(err, code)
	}
	return err
}

func snippet(body []byte) string {
	clean := strings.Join(strings.Fields(string(body)), " ")
	const limit = 200
	runes := []rune(clean)
	if len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}
