package workflow

import (
	"context"

	"reelforge/internal/jobstore"
	"reelforge/internal/logging"
	"reelforge/internal/notifications"
	"reelforge/internal/progress"
	"reelforge/internal/services"
)

func (c *Coordinator) publish(event progress.WorkflowEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = c.now().UTC()
	}
	c.bus.Workflow.Publish(event.JobID, event)
}

func (c *Coordinator) setScalar(r *run, status string, percent int, message string) {
	c.mu.Lock()
	r.scalar = progress.ScalarProgress{JobID: r.job.ID, Status: status, Percent: percent, Message: message}
	scalar := r.scalar
	c.mu.Unlock()
	c.bus.Scalar.Publish(r.job.ID, scalar)
}

// snapshotLocked must be called with c.mu held.
func (c *Coordinator) snapshotLocked(r *run) jobstore.Snapshot {
	state := r.state
	current := state.Steps[state.CurrentIndex]
	snap := jobstore.Snapshot{
		JobID:          r.job.ID,
		VideoID:        r.job.VideoID,
		Prompt:         r.job.Prompt,
		Status:         r.scalar.Status,
		Percent:        r.scalar.Percent,
		Message:        r.scalar.Message,
		CurrentStep:    current.StepNumber,
		ToolName:       current.ToolName,
		DeliverableURL: state.FinalResult,
		Steps:          make([]jobstore.StepRecord, 0, len(state.Steps)),
		CreatedAt:      r.job.CreatedAt,
		UpdatedAt:      c.now().UTC(),
	}
	for _, step := range state.Steps {
		record := jobstore.StepRecord{
			StepNumber: step.StepNumber,
			ToolName:   step.ToolName,
			Status:     string(step.Status),
			DurationMs: step.DurationMs,
			Reflection: step.Reflection,
		}
		if step.Result != nil {
			record.SegmentCount = len(step.Result.Segments)
			if step.Result.Effects != nil {
				snap.EffectsStrategy = string(step.Result.Effects.Strategy)
			}
		}
		snap.Steps = append(snap.Steps, record)
	}
	return snap
}

// persist writes snap best-effort. Failures are logged and never reach the run.
func (c *Coordinator) persist(ctx context.Context, snap jobstore.Snapshot) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(context.WithoutCancel(ctx), snap); err != nil {
		wrapped := services.Wrap(services.ErrPersistence, "workflow", "save snapshot", snap.JobID, err)
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "job snapshot not persisted", "persistence_warning",
			logging.Error(wrapped),
			logging.String(logging.FieldErrorHint, "check the job store database under state_dir"),
			logging.String(logging.FieldImpact, "job history may be stale"),
		)
	}
}

func (c *Coordinator) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ntfy_topic and network reachability"),
			logging.String(logging.FieldImpact, "operator was not notified"),
		)
	}
}
