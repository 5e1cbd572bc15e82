package daemon_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"reelforge/internal/api"
	"reelforge/internal/config"
	"reelforge/internal/daemon"
	"reelforge/internal/jobstore"
	"reelforge/internal/preflight"
	"reelforge/internal/progress"
	"reelforge/internal/testsupport"
	"reelforge/internal/workflow"
)

const deliverable = "https://cdn.example.com/reels/daemon.mp4"

type fixedProber struct{}

func (fixedProber) Duration(context.Context, string) (float64, error) { return 20, nil }

func passingChecks(context.Context, *config.Config) []preflight.Result {
	return []preflight.Result{{Name: "State directory", Passed: true, Detail: "ok"}}
}

type fixture struct {
	cfg    *config.Config
	exec   *testsupport.ScriptedExecutor
	store  *jobstore.Store
	coord  *workflow.Coordinator
	daemon *daemon.Daemon
	server *httptest.Server
	client *api.Client
}

func newFixture(t *testing.T, checks daemon.CheckFunc, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	return newFixtureWithConfig(t, cfg, checks)
}

func newFixtureWithConfig(t *testing.T, cfg *config.Config, checks daemon.CheckFunc) *fixture {
	t.Helper()
	if checks == nil {
		checks = passingChecks
	}
	store := testsupport.MustOpenStore(t, cfg)
	bus := progress.NewBus(cfg.Workflow.SubscriberQueueLimit, nil)
	t.Cleanup(bus.Close)

	var seq atomic.Int64
	exec := testsupport.NewScriptedExecutor()
	coord := workflow.NewCoordinator(cfg, exec, bus,
		workflow.WithStore(store),
		workflow.WithProber(fixedProber{}),
		workflow.WithIDGenerator(func() string { return fmt.Sprintf("job-%d", seq.Add(1)) }),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coord.Shutdown(ctx)
	})

	d, err := daemon.New(cfg, coord, store, nil, daemon.WithChecks(checks))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	server := httptest.NewServer(d.Handler())
	t.Cleanup(server.Close)

	return &fixture{
		cfg:    cfg,
		exec:   exec,
		store:  store,
		coord:  coord,
		daemon: d,
		server: server,
		client: api.NewClient(server.URL, cfg.Paths.APIToken),
	}
}

func (f *fixture) scriptReel(t *testing.T) {
	t.Helper()
	testsupport.ScriptReel(t, f.exec, filepath.Join(testsupport.BaseDir(f.cfg), "media"), deliverable)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
