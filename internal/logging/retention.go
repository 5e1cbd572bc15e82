package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names a directory and a filename glob to prune.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// PruneOldFiles removes files matching targets whose modification time is
// older than maxAge and returns how many were removed. A non-positive maxAge
// disables pruning. Removal failures are logged and skipped.
func PruneOldFiles(logger *slog.Logger, maxAge time.Duration, targets ...RetentionTarget) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-maxAge)

	exclusions := make(map[string]struct{})
	for _, target := range targets {
		for _, path := range target.Exclude {
			if trimmed := strings.TrimSpace(path); trimmed != "" {
				if abs, err := filepath.Abs(trimmed); err == nil {
					exclusions[abs] = struct{}{}
				}
			}
		}
	}

	removed := 0
	for _, target := range targets {
		dir := strings.TrimSpace(target.Dir)
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			name := entry.Name()
			if pat := strings.TrimSpace(target.Pattern); pat != "" {
				if matched, err := filepath.Match(pat, name); err != nil || !matched {
					continue
				}
			}
			fullPath, err := filepath.Abs(filepath.Join(dir, name))
			if err != nil {
				continue
			}
			if _, skip := exclusions[fullPath]; skip {
				continue
			}
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(fullPath); err != nil {
				WarnWithContext(logger, "retention remove failed; file remains", "log_retention_failed",
					String("path", fullPath),
					Error(err),
					String(FieldErrorHint, "check paths.log_dir ownership"),
					String(FieldImpact, "old run file stays on disk"),
				)
				continue
			}
			removed++
		}
	}
	if removed > 0 && logger != nil {
		logger.Info("pruned old run files",
			Int("removed", removed),
			String(FieldEventType, "log_pruned"),
		)
	}
	return removed
}
