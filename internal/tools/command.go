package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"reelforge/internal/adapter"
	"reelforge/internal/logging"
	"reelforge/internal/services"
)

// exitTempFail is EX_TEMPFAIL from sysexits.h; tools use it to report a
// transient failure.
const exitTempFail = 75

// waitDelay bounds how long Wait blocks on output pipes held open by
// grandchildren after the tool itself was killed.
const waitDelay = 2 * time.Second

// CommandExecutor runs tools as local processes.
type CommandExecutor struct {
	manifest Manifest
	timeout  time.Duration
	logger   *slog.Logger
}

// NewCommandExecutor builds an executor over manifest. timeout applies to
// tools that do not set their own.
func NewCommandExecutor(manifest Manifest, timeout time.Duration, logger *slog.Logger) *CommandExecutor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CommandExecutor{
		manifest: manifest,
		timeout:  timeout,
		logger:   logging.NewComponentLogger(logger, "tools-command"),
	}
}

// Execute implements Executor. The JSON-encoded arguments are written to the
// process's stdin and stdout is returned as the result. Output that is not
// JSON is returned as a JSON string.
func (e *CommandExecutor) Execute(ctx context.Context, toolName string, args adapter.StepArgs) (json.RawMessage, error) {
	spec, ok := e.manifest.Tools[toolName]
	if !ok || strings.TrimSpace(spec.Command) == "" {
		return nil, services.Wrap(services.ErrConfiguration, toolName, "command", "no command configured", nil)
	}
	input, err := json.Marshal(args)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, toolName, "command", "encode arguments", err)
	}

	timeout := e.timeout
	if spec.TimeoutSeconds > 0 {
		timeout = time.Duration(spec.TimeoutSeconds) * time.Second
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...) //nolint:gosec
	cmd.Stdin = bytes.NewReader(input)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	cmd.Env = append(os.Environ(),
		"REELFORGE_JOB_ID="+args.JobID,
		"REELFORGE_TOOL="+toolName,
		fmt.Sprintf("REELFORGE_STEP=%d", args.StepNumber),
	)
	for key, value := range spec.Env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	logger := logging.WithContext(ctx, e.logger)
	logger.Debug(
		"tool process exited",
		logging.String("command", spec.Command),
		logging.Duration("elapsed", time.Since(started)),
		logging.Int("stdout_bytes", stdout.Len()),
	)
	if runErr != nil {
		return nil, e.classify(ctx, toolName, runErr, stdout.Bytes(), stderr.Bytes())
	}
	if stderr.Len() > 0 {
		logger.Debug("tool stderr", logging.String("stderr", snippet(stderr.Bytes())))
	}
	return asJSON(stdout.Bytes()), nil
}

func (e *CommandExecutor) classify(ctx context.Context, toolName string, runErr error, stdout, stderr []byte) error {
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, toolName, "command", "tool timed out", runErr)
		}
		return services.Wrap(services.ErrTransient, toolName, "command", "tool cancelled", runErr)
	}
	var exitErr *exec.ExitError
	if !errors.As(runErr, &exitErr) {
		err := services.Wrap(services.ErrConfiguration, toolName, "command", "start tool", runErr)
		return services.WithHint(err, "check the command path in the tool manifest")
	}
	report := stdout
	if len(bytes.TrimSpace(report)) == 0 {
		report = stderr
	}
	fallback := services.ErrToolExecution
	if exitErr.ExitCode() == exitTempFail {
		fallback = services.ErrTransient
	}
	return classifyReported(toolName, "command", report, fallback, runErr)
}

func asJSON(out []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	encoded, err := json.Marshal(string(trimmed))
	if err != nil {
		return json.RawMessage("null")
	}
	return encoded
}
