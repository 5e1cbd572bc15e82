package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"reelforge/internal/config"
	"reelforge/internal/jobstore"
	"reelforge/internal/logging"
	"reelforge/internal/preflight"
	"reelforge/internal/workflow"
)

// CheckFunc evaluates readiness checks for cfg.
type CheckFunc func(ctx context.Context, cfg *config.Config) []preflight.Result

// Daemon owns the coordinator, the job store and the API server, and
// enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	coord  *workflow.Coordinator
	store  *jobstore.Store
	checks CheckFunc

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	checksMu sync.RWMutex
	results  []preflight.Result

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	ActiveJobs   int
	Address      string
	JobStorePath string
	LockFilePath string
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithChecks replaces the preflight checks run at startup.
func WithChecks(checks CheckFunc) Option {
	return func(d *Daemon) {
		if checks != nil {
			d.checks = checks
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, coord *workflow.Coordinator, store *jobstore.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || coord == nil || store == nil {
		return nil, errors.New("daemon requires config, coordinator, and job store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.DaemonLockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		coord:    coord,
		store:    store,
		checks:   preflight.RunAll,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, runs preflight checks and starts the API
// server. Failed checks are logged but do not prevent startup.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelforge daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.refreshChecks(runCtx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("reelforge daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.address()),
	)
	return nil
}

// Stop shuts down the API server, cancels active runs and releases the
// daemon lock. Runs that do not finish before ctx expires are abandoned.
func (d *Daemon) Stop(ctx context.Context) {
	if !d.running.Load() {
		return
	}
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.coord.Shutdown(ctx); err != nil {
		logging.WarnWithContext(d.logger, "active runs did not stop in time", "shutdown_timeout",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "runs were marked interrupted on the next start"),
			logging.String(logging.FieldImpact, "in-flight jobs end without a terminal snapshot"),
		)
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if the next start fails"),
		)
	}
	d.running.Store(false)
	d.logger.Info("reelforge daemon stopped")
}

// Close stops the daemon and releases the job store.
func (d *Daemon) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d.Stop(ctx)
	return d.store.Close()
}

// Handler exposes the API routes.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Address returns the API listen address once started.
func (d *Daemon) Address() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		ActiveJobs:   d.coord.Active(),
		Address:      d.api.address(),
		JobStorePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}
}

// Checks returns the latest preflight results.
func (d *Daemon) Checks() []preflight.Result {
	d.checksMu.RLock()
	defer d.checksMu.RUnlock()
	return append([]preflight.Result(nil), d.results...)
}

func (d *Daemon) refreshChecks(ctx context.Context) []preflight.Result {
	results := d.checks(ctx, d.cfg)
	for _, failed := range preflight.Failed(results) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldErrorHint, "fix the reported dependency before submitting jobs"),
			logging.String(logging.FieldImpact, "jobs may fail at the affected step"),
		)
	}
	d.checksMu.Lock()
	d.results = results
	d.checksMu.Unlock()
	return results
}
