package preflight

import (
	"context"

	"reelforge/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Paths.OutputDir != "" {
		results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	}

	switch cfg.Tools.Executor {
	case config.ExecutorCommand:
		results = append(results, CheckToolCommands(cfg.Tools.ManifestPath))
	default:
		results = append(results, CheckToolServer(ctx, cfg.Tools.BaseURL))
	}

	// Reflections fall back to templates without a key, so only check a
	// configured endpoint.
	if cfg.Workflow.Reflections && cfg.GetLLM().APIKey != "" {
		results = append(results, CheckLLM(ctx, "Reflection LLM", cfg.GetLLM()))
	}

	results = append(results, CheckFFprobe(cfg))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
