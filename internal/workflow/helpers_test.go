package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/jobstore"
	"reelforge/internal/notifications"
	"reelforge/internal/progress"
	"reelforge/internal/testsupport"
	"reelforge/internal/workflow"
)

const testJobID = "job-1"

type eventRecorder struct {
	mu     sync.Mutex
	events []progress.WorkflowEvent
	done   chan struct{}
	once   sync.Once
}

func recordWorkflow(bus *progress.Bus, jobID string) (*eventRecorder, func()) {
	rec := &eventRecorder{done: make(chan struct{})}
	unsubscribe := bus.Workflow.Subscribe(jobID, func(event progress.WorkflowEvent) {
		rec.mu.Lock()
		rec.events = append(rec.events, event)
		rec.mu.Unlock()
		if event.Terminal() {
			rec.once.Do(func() { close(rec.done) })
		}
	})
	return rec, unsubscribe
}

func (r *eventRecorder) wait(t *testing.T) []progress.WorkflowEvent {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal workflow event")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.WorkflowEvent(nil), r.events...)
}

func terminal(events []progress.WorkflowEvent) progress.WorkflowEvent {
	if len(events) == 0 {
		return progress.WorkflowEvent{}
	}
	return events[len(events)-1]
}

func kinds(events []progress.WorkflowEvent) []progress.Kind {
	out := make([]progress.Kind, 0, len(events))
	for _, event := range events {
		out = append(out, event.Kind)
	}
	return out
}

func findEvent(events []progress.WorkflowEvent, kind progress.Kind, step int) (progress.WorkflowEvent, bool) {
	for _, event := range events {
		if event.Kind == kind && event.StepNumber == step {
			return event, true
		}
	}
	return progress.WorkflowEvent{}, false
}

type stubProber struct {
	duration float64
	err      error
	mu       sync.Mutex
	paths    []string
}

func (p *stubProber) Duration(_ context.Context, path string) (float64, error) {
	p.mu.Lock()
	p.paths = append(p.paths, path)
	p.mu.Unlock()
	return p.duration, p.err
}

type stubNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (s *stubNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *stubNotifier) Events() []notifications.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notifications.Event(nil), s.events...)
}

type failingStore struct{}

func (failingStore) Save(context.Context, jobstore.Snapshot) error {
	return errors.New("disk full")
}

type harness struct {
	cfg      *config.Config
	exec     *testsupport.ScriptedExecutor
	bus      *progress.Bus
	prober   *stubProber
	notifier *stubNotifier
	media    string
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	bus := progress.NewBus(0, nil)
	t.Cleanup(bus.Close)
	return &harness{
		cfg:      cfg,
		exec:     testsupport.NewScriptedExecutor(),
		bus:      bus,
		prober:   &stubProber{duration: 30},
		notifier: &stubNotifier{},
		media:    testsupport.BaseDir(cfg) + "/media",
	}
}

func (h *harness) coordinator(t *testing.T, opts ...workflow.Option) *workflow.Coordinator {
	t.Helper()
	base := []workflow.Option{
		workflow.WithProber(h.prober),
		workflow.WithNotifier(h.notifier),
		workflow.WithIDGenerator(func() string { return testJobID }),
	}
	coord := workflow.NewCoordinator(h.cfg, h.exec, h.bus, append(base, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coord.Shutdown(ctx)
	})
	return coord
}

func (h *harness) clips(t *testing.T, names ...string) []string {
	t.Helper()
	return testsupport.WriteMediaFiles(t, h.media, names...)
}

func segmentItems(key string, paths []string) []map[string]any {
	items := make([]map[string]any, 0, len(paths))
	for i, path := range paths {
		start := float64(i * 10)
		items = append(items, map[string]any{
			key:         path,
			"startTime": start,
			"endTime":   start + 5,
			"score":     0.9,
			"strategy":  "semantic",
		})
	}
	return items
}

// scriptHappyPath scripts all five tools to succeed with local clips.
func (h *harness) scriptHappyPath(t *testing.T) {
	t.Helper()
	search := h.clips(t, "s1.mp4", "s2.mp4", "s3.mp4", "s4.mp4", "s5.mp4")
	highlights := h.clips(t, "h1.mp4", "h2.mp4", "h3.mp4")
	reel := h.clips(t, "reel.mp4")
	h.exec.
		Returns("semantic_search", map[string]any{"results": segmentItems("filePath", search)}).
		Returns("extract_highlights", map[string]any{"highlights": segmentItems("outputPath", highlights)}).
		Returns("smart_cuts", segmentItems("filePath", highlights[:2])).
		Returns("stitch_segments", map[string]any{"outputPath": reel[0], "startTime": 0, "endTime": 30}).
		Returns("render_final", map[string]any{"deliverableUrl": "https://cdn.example.com/reels/job-1.mp4"})
}
