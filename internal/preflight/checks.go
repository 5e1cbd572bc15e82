package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"

	"reelforge/internal/config"
	"reelforge/internal/deps"
	"reelforge/internal/services/llm"
)

// CheckLLM verifies that the LLM API is reachable and the key is valid.
// It uses a 30-second timeout and a single unretried ping.
func CheckLLM(ctx context.Context, name string, cfg config.LLMConfig) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	})

	if err := client.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeNetError("LLM API", err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckToolServer verifies that the step tool server answers HTTP requests.
// Any response counts as reachable; tool servers are not required to serve
// anything at their base path.
func CheckToolServer(ctx context.Context, baseURL string) Result {
	const name = "Tool server"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing tools.base_url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", base, err)}
	}
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", base, summarizeNetError("tool server", err))}
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: status %d)", base, resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", base)}
}

// CheckToolCommands verifies that every command named in the tool manifest
// resolves to an executable.
func CheckToolCommands(manifestPath string) Result {
	const name = "Tool commands"

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("read manifest: %v", err)}
	}
	var manifest struct {
		Tools map[string]struct {
			Command string `yaml:"command"`
		} `yaml:"tools"`
	}
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("parse manifest: %v", err)}
	}
	if len(manifest.Tools) == 0 {
		return Result{Name: name, Detail: "manifest lists no tools"}
	}
	requirements := make([]deps.Requirement, 0, len(manifest.Tools))
	for tool, entry := range manifest.Tools {
		requirements = append(requirements, deps.Requirement{Name: tool, Command: entry.Command})
	}
	if missing := deps.MissingRequired(deps.CheckBinaries(requirements)); len(missing) > 0 {
		return Result{Name: name, Detail: "missing: " + strings.Join(missing, ", ")}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d tools resolved", len(requirements))}
}

// CheckFFprobe reports whether the duration probe binary is installed. The
// render step degrades to a plain effect plan without it.
func CheckFFprobe(cfg *config.Config) Result {
	const name = "FFprobe"
	status := deps.CheckBinaries([]deps.Requirement{{
		Name:        name,
		Command:     cfg.FFprobeBinary(),
		Description: "Used to probe reel duration before rendering",
		Optional:    true,
	}})[0]
	if !status.Available {
		return Result{Name: name, Detail: status.Detail + " (effects degrade to defaults)"}
	}
	return Result{Name: name, Passed: true, Detail: status.Command}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeNetError(target string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("health check timed out (%s unresponsive)", target)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("health check timed out (%s unreachable)", target)
	}
	return err.Error()
}
