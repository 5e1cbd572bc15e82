package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"reelforge/internal/adapter"
	"reelforge/internal/progress"
	"reelforge/internal/services"
)

// JobView is a deep copy of an active job's state.
type JobView struct {
	Job      Job                     `json:"job"`
	Run      RunState                `json:"run"`
	Progress progress.ScalarProgress `json:"progress"`
}

// CreateJob registers a job under a generated id and starts its run.
func (c *Coordinator) CreateJob(ctx context.Context, videoID, prompt string) (Job, error) {
	return c.StartWorkflow(ctx, videoID, prompt, c.newID())
}

// StartWorkflow registers a job under jobID and starts its run on a new
// goroutine. The job is queryable through Status as soon as this returns; no
// step has started at that point.
func (c *Coordinator) StartWorkflow(ctx context.Context, videoID, prompt, jobID string) (Job, error) {
	videoID = strings.TrimSpace(videoID)
	prompt = strings.TrimSpace(prompt)
	jobID = strings.TrimSpace(jobID)
	switch {
	case jobID == "":
		return Job{}, services.Wrap(services.ErrValidation, "workflow", "start", "job id is required", nil)
	case videoID == "":
		return Job{}, services.Wrap(services.ErrValidation, "workflow", "start", "videoId is required", nil)
	case prompt == "":
		return Job{}, services.Wrap(services.ErrValidation, "workflow", "start", "prompt is required", nil)
	}
	job := Job{
		ID:           jobID,
		VideoID:      videoID,
		Prompt:       prompt,
		CreatedAt:    c.now().UTC(),
		AddWatermark: strings.TrimSpace(c.cfg.Effects.WatermarkText) != "",
	}
	r := &run{
		job:   job,
		state: newRunState(job.ID, job.CreatedAt),
		scalar: progress.ScalarProgress{
			JobID:   job.ID,
			Status:  progress.StatusPending,
			Percent: 0,
			Message: "Queued",
		},
	}

	// Shutdown cancels baseCtx under c.mu, so a run admitted here is counted
	// before Shutdown starts waiting.
	c.mu.Lock()
	if c.baseCtx.Err() != nil {
		c.mu.Unlock()
		return Job{}, services.Wrap(services.ErrTransient, "workflow", "start", "coordinator is shutting down", nil)
	}
	if _, exists := c.runs[job.ID]; exists {
		c.mu.Unlock()
		return Job{}, services.Wrap(services.ErrValidation, "workflow", "start", fmt.Sprintf("job %s already exists", job.ID), nil)
	}
	c.runs[job.ID] = r
	snap := c.snapshotLocked(r)
	c.wg.Add(1)
	c.mu.Unlock()

	runCtx := services.WithJobID(c.baseCtx, job.ID)
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		runCtx = services.WithRequestID(runCtx, rid)
	}
	c.persist(runCtx, snap)
	c.bus.Scalar.Publish(job.ID, r.scalar)

	go c.execute(runCtx, r)
	return job, nil
}

// Status returns the current scalar progress of an active job.
func (c *Coordinator) Status(jobID string) (progress.ScalarProgress, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.runs[jobID]
	if !ok {
		return progress.ScalarProgress{}, false
	}
	return r.scalar, true
}

// Snapshot returns a deep copy of an active job's state.
func (c *Coordinator) Snapshot(jobID string) (JobView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.runs[jobID]
	if !ok {
		return JobView{}, false
	}
	return r.view(), true
}

// Runs returns copies of every active job, oldest first.
func (c *Coordinator) Runs() []JobView {
	c.mu.RLock()
	out := make([]JobView, 0, len(c.runs))
	for _, r := range c.runs {
		out = append(out, r.view())
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Job.CreatedAt.Equal(out[j].Job.CreatedAt) {
			return out[i].Job.ID < out[j].Job.ID
		}
		return out[i].Job.CreatedAt.Before(out[j].Job.CreatedAt)
	})
	return out
}

// Active reports how many runs are in memory.
func (c *Coordinator) Active() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.runs)
}

func (r *run) view() JobView {
	return JobView{Job: r.job, Run: r.state.clone(), Progress: r.scalar}
}

func (c *Coordinator) discard(jobID string) {
	c.mu.Lock()
	delete(c.runs, jobID)
	c.mu.Unlock()
}

func stepPercent(completedSteps int) int {
	percent := completedSteps * 100 / adapter.StepCount
	if percent > 100 {
		return 100
	}
	return percent
}
