package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelforge/internal/adapter"
	"reelforge/internal/config"
	"reelforge/internal/services"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestCommandExecutorPassesArgumentsOnStdin(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "echo.sh", `cat; printf '' >&2`)
	exec := NewCommandExecutor(Manifest{Tools: map[string]Command{
		adapter.ToolSemanticSearch: {Command: script},
	}}, time.Minute, nil)

	raw, err := exec.Execute(context.Background(), adapter.ToolSemanticSearch, adapter.StepArgs{JobID: "job-9", Prompt: "dunks"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !strings.Contains(string(raw), `"prompt":"dunks"`) {
		t.Fatalf("expected echoed arguments, got %s", raw)
	}
}

func TestCommandExecutorWrapsPlainOutput(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "render.sh", `cat >/dev/null; echo "https://cdn.example.com/$REELFORGE_JOB_ID.mp4"`)
	exec := NewCommandExecutor(Manifest{Tools: map[string]Command{
		adapter.ToolRenderFinal: {Command: script},
	}}, time.Minute, nil)

	raw, err := exec.Execute(context.Background(), adapter.ToolRenderFinal, adapter.StepArgs{JobID: "job-9"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	url, ok := adapter.DeliverableURL(raw)
	if !ok || url != "https://cdn.example.com/job-9.mp4" {
		t.Fatalf("unexpected deliverable %q (%v) from %s", url, ok, raw)
	}
}

func TestCommandExecutorClassifiesExitCodes(t *testing.T) {
	dir := t.TempDir()
	failing := writeScript(t, dir, "fail.sh", `cat >/dev/null; echo '{"error":"decoder exploded","code":"encoding_failure"}'; exit 1`)
	tempfail := writeScript(t, dir, "tempfail.sh", `cat >/dev/null; echo 'gpu busy' >&2; exit 75`)
	plain := writeScript(t, dir, "plain.sh", `cat >/dev/null; echo 'segfault' >&2; exit 2`)
	exec := NewCommandExecutor(Manifest{Tools: map[string]Command{
		"fail":     {Command: failing},
		"tempfail": {Command: tempfail},
		"plain":    {Command: plain},
		"missing":  {Command: filepath.Join(dir, "does-not-exist")},
	}}, time.Minute, nil)

	cases := map[string]struct {
		marker error
		text   string
	}{
		"fail":     {services.ErrEncoding, "decoder exploded"},
		"tempfail": {services.ErrTransient, "gpu busy"},
		"plain":    {services.ErrToolExecution, "segfault"},
		"missing":  {services.ErrConfiguration, "start tool"},
	}
	for tool, want := range cases {
		_, err := exec.Execute(context.Background(), tool, adapter.StepArgs{})
		if err == nil {
			t.Fatalf("%s: expected error", tool)
		}
		if !errors.Is(err, want.marker) {
			t.Fatalf("%s: expected %v, got %v", tool, want.marker, err)
		}
		if !strings.Contains(err.Error(), want.text) {
			t.Fatalf("%s: expected %q in %v", tool, want.text, err)
		}
	}
}

func TestCommandExecutorTimeout(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "slow.sh", `exec sleep 5`)
	exec := NewCommandExecutor(Manifest{Tools: map[string]Command{
		adapter.ToolSmartCuts: {Command: script, TimeoutSeconds: 1},
	}}, time.Minute, nil)

	_, err := exec.Execute(context.Background(), adapter.ToolSmartCuts, adapter.StepArgs{})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	content := `tools:
  semantic_search:
    command: /opt/reel/search
    args: ["--json"]
    env:
      MODEL: clip
  extract_highlights: {command: /opt/reel/highlights}
  smart_cuts: {command: /opt/reel/cuts, timeout_seconds: 30}
  stitch_segments: {command: /opt/reel/stitch}
  render_final: {command: /opt/reel/render}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	manifest, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest returned error: %v", err)
	}
	search := manifest.Tools[adapter.ToolSemanticSearch]
	if search.Command != "/opt/reel/search" || len(search.Args) != 1 || search.Env["MODEL"] != "clip" {
		t.Fatalf("unexpected search command %#v", search)
	}
	if manifest.Tools[adapter.ToolSmartCuts].TimeoutSeconds != 30 {
		t.Fatalf("expected smart cuts timeout 30")
	}

	cfg := config.Default()
	cfg.Tools.Executor = config.ExecutorCommand
	cfg.Tools.ManifestPath = path
	exec, err := New(&cfg, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, ok := exec.(*CommandExecutor); !ok {
		t.Fatalf("expected command executor, got %T", exec)
	}
}

func TestLoadManifestReportsMissingTools(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	if err := os.WriteFile(path, []byte("tools:\n  semantic_search: {command: /bin/true}\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	_, err := LoadManifest(path)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "render_final") {
		t.Fatalf("expected missing tools listed, got %v", err)
	}
}
