package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reelforge/internal/adapter"
	"reelforge/internal/logging"
	"reelforge/internal/notifications"
	"reelforge/internal/progress"
	"reelforge/internal/services"
	"reelforge/internal/tracing"
)

func (c *Coordinator) execute(ctx context.Context, r *run) {
	defer c.wg.Done()

	job := r.job
	ctx, span := tracing.StartSpan(ctx, "workflow.run",
		tracing.StringAttr("job.id", job.ID),
		tracing.StringAttr("video.id", job.VideoID),
	)
	defer span.End()

	logger := logging.WithContext(ctx, c.logger)
	logger.Info(
		"workflow started",
		logging.String(logging.FieldEventType, "workflow_start"),
		logging.String("video_id", job.VideoID),
		logging.Bool("watermark", job.AddWatermark),
	)

	c.setScalar(r, progress.StatusRunning, 0, "Workflow started")
	c.publish(progress.WorkflowEvent{
		JobID: job.ID,
		Kind:  progress.KindInitial,
		Payload: progress.Payload{
			Message:    "Workflow started",
			TotalSteps: adapter.StepCount,
		},
	})

	for index := 0; index < adapter.StepCount; index++ {
		if err := c.runStep(ctx, r, index); err != nil {
			tracing.RecordError(span, err)
			c.fail(ctx, r, index, err)
			return
		}
	}
	c.complete(ctx, r)
	tracing.SetOK(span)
}

func (c *Coordinator) complete(ctx context.Context, r *run) {
	job := r.job

	c.mu.Lock()
	last := r.state.Steps[len(r.state.Steps)-1]
	url := ""
	effectsStrategy := ""
	if last.Result != nil {
		url = last.Result.DeliverableURL
		if last.Result.Effects != nil {
			effectsStrategy = string(last.Result.Effects.Strategy)
		}
	}
	r.state.IsComplete = true
	r.state.FinalResult = url
	r.scalar = progress.ScalarProgress{JobID: job.ID, Status: progress.StatusCompleted, Percent: 100, Message: "Reel ready"}
	scalar := r.scalar
	snap := c.snapshotLocked(r)
	elapsed := c.now().Sub(r.state.StartedAt)
	c.mu.Unlock()

	logging.WithContext(ctx, c.logger).Info(
		"workflow completed",
		logging.String(logging.FieldEventType, "workflow_complete"),
		logging.String("deliverable_url", url),
		logging.String("effects_strategy", effectsStrategy),
		logging.Duration("workflow_duration", elapsed),
	)

	c.persist(ctx, snap)
	c.bus.Scalar.Publish(job.ID, scalar)
	c.publish(progress.WorkflowEvent{
		JobID:      job.ID,
		Kind:       progress.KindWorkflowComplete,
		StepNumber: adapter.StepCount,
		ToolName:   last.ToolName,
		Payload: progress.Payload{
			Message:        "Workflow completed",
			DeliverableURL: url,
			DurationMs:     elapsed.Milliseconds(),
			Effects:        effectsStrategy,
		},
	})
	c.discard(job.ID)

	c.notify(ctx, notifications.EventJobCompleted, notifications.Payload{
		"jobId":          job.ID,
		"videoId":        job.VideoID,
		"prompt":         job.Prompt,
		"deliverableUrl": url,
		"duration":       elapsed.Round(time.Second).String(),
	})
}

func (c *Coordinator) fail(ctx context.Context, r *run, index int, stepErr error) {
	job := r.job
	if ctx.Err() != nil && services.KindOf(stepErr) != services.KindTransient {
		stepErr = services.Wrap(services.ErrTransient, "workflow", "run", "run cancelled", stepErr)
	}
	details := services.Details(stepErr)
	message := strings.TrimSpace(stepErr.Error())

	c.mu.Lock()
	step := &r.state.Steps[index]
	if step.Status == StepExecuting {
		if err := step.transition(StepFailed); err != nil {
			c.logger.Warn("step state transition rejected", logging.Error(err))
		}
	}
	r.state.IsComplete = true
	r.scalar = progress.ScalarProgress{
		JobID:   job.ID,
		Status:  progress.StatusFailed,
		Percent: r.scalar.Percent,
		Message: fmt.Sprintf("%s failed: %s", stepLabel(step.ToolName), message),
	}
	scalar := r.scalar
	snap := c.snapshotLocked(r)
	snap.ErrorCode = details.Code
	toolName := step.ToolName
	stepNumber := step.StepNumber
	c.mu.Unlock()

	attrs := []logging.Attr{
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorCode, details.Code),
		logging.Alert("workflow_failure"),
	}
	if details.Hint != "" {
		attrs = append(attrs, logging.String(logging.FieldErrorHint, details.Hint))
	}
	if details.Cause != nil {
		attrs = append(attrs, logging.Error(details.Cause))
	} else {
		attrs = append(attrs, logging.Error(stepErr))
	}
	stepCtx := services.WithTool(services.WithStep(ctx, stepNumber), toolName)
	logging.ErrorWithContext(logging.WithContext(stepCtx, c.logger), "workflow failed", "workflow_failed", attrs...)

	c.persist(ctx, snap)
	c.bus.Scalar.Publish(job.ID, scalar)
	c.publish(progress.WorkflowEvent{
		JobID:      job.ID,
		Kind:       progress.KindError,
		StepNumber: stepNumber,
		ToolName:   toolName,
		Payload: progress.Payload{
			Message:     message,
			Code:        details.Code,
			Retryable:   services.IsRetryable(stepErr),
			Description: details.Hint,
		},
	})
	c.discard(job.ID)

	c.notify(ctx, notifications.EventJobFailed, notifications.Payload{
		"jobId":   job.ID,
		"videoId": job.VideoID,
		"step":    stepNumber,
		"tool":    toolName,
		"code":    details.Code,
		"error":   message,
	})
}
