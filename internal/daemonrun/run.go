// Package daemonrun assembles the reelforge daemon from configuration and
// runs it until the process is signalled.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/daemon"
	"reelforge/internal/jobstore"
	"reelforge/internal/logging"
	"reelforge/internal/notifications"
	"reelforge/internal/progress"
	"reelforge/internal/reflection"
	"reelforge/internal/tools"
	"reelforge/internal/tracing"
	"reelforge/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the reelforge daemon and blocks until SIGINT/SIGTERM or until
// cmdCtx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("reelforge-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.CurrentLogPath(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update reelforge.log link: %v\n", err)
	}
	logDependencySnapshot(logger, cfg)
	logging.PruneOldFiles(logger, time.Duration(cfg.Logging.RetentionDays)*24*time.Hour,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "reelforge-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "reelforge-*.traces"},
	)

	pidPath := filepath.Join(cfg.Paths.StateDir, "reelforge.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	shutdownTracing, err := setupTracing(signalCtx, cfg, runID)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("trace exporter shutdown failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "tracing_shutdown_failed"),
				logging.String(logging.FieldErrorHint, "recent spans may be missing from the trace file"),
			)
		}
	}()

	store, err := jobstore.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open job store", "job_store_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.state_dir permissions"),
		)
		return err
	}
	if n, err := store.MarkInterrupted(signalCtx, "Interrupted by daemon restart"); err != nil {
		logging.WarnWithContext(logger, "unable to close out interrupted jobs", "job_store_recovery_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "job history may show stale running jobs"),
			logging.String(logging.FieldImpact, "history only"),
		)
	} else if n > 0 {
		logger.Info("interrupted jobs marked failed", logging.Int64("count", n))
	}

	executor, err := tools.New(cfg, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("init step tools: %w", err)
	}

	bus := progress.NewBus(cfg.Workflow.SubscriberQueueLimit, logger)
	defer bus.Close()
	coord := workflow.NewCoordinator(cfg, executor, bus,
		workflow.WithLogger(logger),
		workflow.WithStore(store),
		workflow.WithNotifier(notifications.NewService(cfg)),
		workflow.WithSummarizer(reflection.New(cfg, logger)),
	)

	d, err := daemon.New(cfg, coord, store, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("reelforge daemon shutting down", logging.Int("active_jobs", coord.Active()))
	return nil
}

func setupTracing(ctx context.Context, cfg *config.Config, runID string) (func(context.Context) error, error) {
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter == config.TracingExporterNone {
		return tracing.Setup(ctx, cfg.Tracing, nil)
	}
	tracePath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("reelforge-%s.traces", runID))
	file, err := os.OpenFile(tracePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	shutdown, err := tracing.Setup(ctx, cfg.Tracing, file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return func(ctx context.Context) error {
		err := shutdown(ctx)
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
		return err
	}, nil
}

func ensureCurrentLogPointer(current, target string) error {
	if target == "" {
		return nil
	}
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffprobe := cfg.FFprobeBinary()
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("tool_executor", cfg.Tools.Executor),
		logging.String("tool_base_url", cfg.Tools.BaseURL),
		logging.String("tool_manifest", cfg.Tools.ManifestPath),
		logging.Bool("reflections", cfg.Workflow.Reflections),
		logging.Bool("llm_key_present", cfg.GetLLM().APIKey != ""),
		logging.Bool("ffprobe_available", binaryAvailable(ffprobe)),
		logging.String("ffprobe_binary", ffprobe),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("api_token_set", strings.TrimSpace(cfg.Paths.APIToken) != ""),
		logging.Bool("tracing", cfg.Tracing.Enabled),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
