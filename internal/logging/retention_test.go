package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPruneOldFiles(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-72 * time.Hour)
	write := func(name string, mtime time.Time) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("chtimes %s: %v", name, err)
		}
		return path
	}
	stale := write("reelforge-a.log", old)
	current := write("reelforge-b.log", old)
	fresh := write("reelforge-c.log", time.Now())
	other := write("notes.txt", old)
	staleTrace := write("reelforge-a.traces", old)

	removed := PruneOldFiles(NewNop(), 24*time.Hour,
		RetentionTarget{Dir: dir, Pattern: "reelforge-*.log", Exclude: []string{current}},
		RetentionTarget{Dir: dir, Pattern: "reelforge-*.traces"},
	)
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	for _, path := range []string{stale, staleTrace} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed, stat err %v", path, err)
		}
	}
	for _, path := range []string{current, fresh, other} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
}

func TestPruneOldFilesDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reelforge-a.log")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-1000 * time.Hour)
	_ = os.Chtimes(path, past, past)
	if n := PruneOldFiles(nil, 0, RetentionTarget{Dir: dir}); n != 0 {
		t.Fatalf("removed %d with pruning disabled", n)
	}
}
