package testsupport

import (
	"testing"

	"reelforge/internal/adapter"
)

// ScriptReel scripts all five tools of exec to succeed with placeholder clips
// written under dir. The render tool answers with deliverableURL.
func ScriptReel(t testing.TB, exec *ScriptedExecutor, dir, deliverableURL string) {
	t.Helper()
	search := WriteMediaFiles(t, dir, "search-1.mp4", "search-2.mp4", "search-3.mp4")
	highlights := WriteMediaFiles(t, dir, "highlight-1.mp4", "highlight-2.mp4")
	reel := WriteMediaFiles(t, dir, "reel.mp4")
	exec.
		Returns(adapter.ToolSemanticSearch, map[string]any{"results": clipItems(search)}).
		Returns(adapter.ToolExtractHighlights, map[string]any{"highlights": clipItems(highlights)}).
		Returns(adapter.ToolSmartCuts, clipItems(highlights[:1])).
		Returns(adapter.ToolStitchSegments, map[string]any{"outputPath": reel[0], "startTime": 0, "endTime": 20}).
		Returns(adapter.ToolRenderFinal, map[string]any{"deliverableUrl": deliverableURL})
}

func clipItems(paths []string) []map[string]any {
	items := make([]map[string]any, 0, len(paths))
	for i, path := range paths {
		start := float64(i * 10)
		items = append(items, map[string]any{
			"filePath":  path,
			"startTime": start,
			"endTime":   start + 5,
			"score":     0.8,
		})
	}
	return items
}
