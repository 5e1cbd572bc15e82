package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/daemon"
	"reelforge/internal/jobstore"
	"reelforge/internal/preflight"
	"reelforge/internal/progress"
	"reelforge/internal/testsupport"
	"reelforge/internal/workflow"
)

const testDeliverable = "https://cdn.example.com/reels/cli.mp4"

type fixedProber struct{}

func (fixedProber) Duration(context.Context, string) (float64, error) { return 20, nil }

type cliTestEnv struct {
	cfg        *config.Config
	exec       *testsupport.ScriptedExecutor
	store      *jobstore.Store
	server     *httptest.Server
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	bus := progress.NewBus(cfg.Workflow.SubscriberQueueLimit, nil)
	t.Cleanup(bus.Close)

	var seq atomic.Int64
	exec := testsupport.NewScriptedExecutor()
	coord := workflow.NewCoordinator(cfg, exec, bus,
		workflow.WithStore(store),
		workflow.WithProber(fixedProber{}),
		workflow.WithIDGenerator(func() string { return fmt.Sprintf("cli-%d", seq.Add(1)) }),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coord.Shutdown(ctx)
	})

	checks := func(context.Context, *config.Config) []preflight.Result {
		return []preflight.Result{{Name: "Tool server", Passed: true, Detail: "reachable"}}
	}
	d, err := daemon.New(cfg, coord, store, nil, daemon.WithChecks(checks))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	server := httptest.NewServer(d.Handler())
	t.Cleanup(server.Close)

	cfg.Paths.APIBind = strings.TrimPrefix(server.URL, "http://")
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		exec:       exec,
		store:      store,
		server:     server,
		configPath: configPath,
	}
}

func (env *cliTestEnv) scriptReel(t *testing.T) {
	t.Helper()
	testsupport.ScriptReel(t, env.exec, filepath.Join(testsupport.BaseDir(env.cfg), "media"), testDeliverable)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nstate_dir = %q\nlog_dir = %q\noutput_dir = %q\napi_bind = %q\napi_token = %q\n\n[tools]\nbase_url = %q\n",
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Paths.OutputDir,
		cfg.Paths.APIBind,
		cfg.Paths.APIToken,
		cfg.Tools.BaseURL,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
