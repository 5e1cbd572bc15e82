package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/adapter"
	"reelforge/internal/config"
	"reelforge/internal/effects"
	"reelforge/internal/jobstore"
	"reelforge/internal/logging"
	"reelforge/internal/media/ffprobe"
	"reelforge/internal/notifications"
	"reelforge/internal/progress"
	"reelforge/internal/reflection"
	"reelforge/internal/segment"
)

// StepExecutor invokes the tool behind a step. The result is opaque to the
// coordinator beyond what canonicalization extracts. Timeouts are the
// executor's concern.
type StepExecutor interface {
	Execute(ctx context.Context, toolName string, args adapter.StepArgs) (json.RawMessage, error)
}

// SnapshotStore persists job snapshots. *jobstore.Store satisfies it.
type SnapshotStore interface {
	Save(ctx context.Context, snap jobstore.Snapshot) error
}

// Coordinator owns every active run and the goroutines driving them.
type Coordinator struct {
	cfg       *config.Config
	executor  StepExecutor
	bus       *progress.Bus
	logger    *slog.Logger
	store     SnapshotStore
	notifier  notifications.Service
	summarize reflection.Summarizer
	prober    effects.PathProber
	planner   *effects.Planner
	canon     adapter.Canonicalizer
	validator *segment.Validator
	flags     effects.FeatureFlags
	now       func() time.Time
	newID     func() string

	mu   sync.RWMutex
	runs map[string]*run

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// run is the coordinator's bookkeeping for one job. state is written only by
// the job's goroutine, always under Coordinator.mu.
type run struct {
	job    Job
	state  *RunState
	scalar progress.ScalarProgress
}

// Option configures optional Coordinator collaborators.
type Option func(*Coordinator)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStore enables best-effort snapshot persistence.
func WithStore(store SnapshotStore) Option {
	return func(c *Coordinator) { c.store = store }
}

// WithNotifier overrides the notification service built from config.
func WithNotifier(notifier notifications.Service) Option {
	return func(c *Coordinator) {
		if notifier != nil {
			c.notifier = notifier
		}
	}
}

// WithSummarizer enables step reflections.
func WithSummarizer(summarizer reflection.Summarizer) Option {
	return func(c *Coordinator) { c.summarize = summarizer }
}

// WithProber overrides the ffprobe-backed duration prober used by the render step.
func WithProber(prober effects.PathProber) Option {
	return func(c *Coordinator) { c.prober = prober }
}

// WithValidator overrides the segment validator.
func WithValidator(validator *segment.Validator) Option {
	return func(c *Coordinator) {
		if validator != nil {
			c.validator = validator
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator overrides job id generation.
func WithIDGenerator(gen func() string) Option {
	return func(c *Coordinator) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// NewCoordinator constructs a coordinator. Runs started on it continue until
// they finish or Shutdown is called.
func NewCoordinator(cfg *config.Config, executor StepExecutor, bus *progress.Bus, opts ...Option) *Coordinator {
	if cfg == nil {
		defaults := config.Default()
		cfg = &defaults
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:       cfg,
		executor:  executor,
		bus:       bus,
		logger:    logging.NewNop(),
		notifier:  notifications.NewService(cfg),
		prober:    ffprobe.Prober{Binary: cfg.FFprobeBinary()},
		canon:     adapter.Canonicalizer{DefaultSpan: cfg.Workflow.DefaultSpanSeconds},
		validator: segment.NewValidator(),
		flags:     effects.FlagsFromConfig(cfg.Effects),
		now:       time.Now,
		newID:     uuid.NewString,
		runs:      make(map[string]*run),
		baseCtx:   ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "workflow")
	c.planner = effects.NewPlanner(c.logger)
	if c.bus == nil {
		c.bus = progress.NewBus(cfg.Workflow.SubscriberQueueLimit, c.logger)
	}
	if !cfg.Workflow.Reflections {
		c.summarize = nil
	}
	return c
}

// Bus returns the progress bus runs publish on.
func (c *Coordinator) Bus() *progress.Bus {
	return c.bus
}

// Shutdown cancels active runs and waits for their goroutines to exit or for
// ctx to expire.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.cancel()
	c.mu.Unlock()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every run started so far has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
