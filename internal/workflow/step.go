package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reelforge/internal/adapter"
	"reelforge/internal/effects"
	"reelforge/internal/logging"
	"reelforge/internal/progress"
	"reelforge/internal/reflection"
	"reelforge/internal/segment"
	"reelforge/internal/services"
	"reelforge/internal/tracing"
)

func (c *Coordinator) runStep(ctx context.Context, r *run, index int) error {
	spec, ok := adapter.Spec(index + 1)
	if !ok {
		return services.Wrap(services.ErrConfiguration, "workflow", "plan", fmt.Sprintf("no step at index %d", index), nil)
	}
	ctx = services.WithTool(services.WithStep(ctx, spec.Number), spec.ToolName)
	ctx, span := tracing.StartSpan(ctx, "workflow.step",
		tracing.IntAttr("step.number", spec.Number),
		tracing.StringAttr("step.tool", spec.ToolName),
	)
	defer span.End()

	logger := logging.WithContext(ctx, c.logger)
	label := stepLabel(spec.ToolName)

	view, err := c.beginStep(r, index)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	started := c.now()
	logger.Info("step started", logging.String(logging.FieldEventType, "step_start"))
	c.publish(progress.WorkflowEvent{
		JobID:      r.job.ID,
		Kind:       progress.KindStepStart,
		StepNumber: spec.Number,
		ToolName:   spec.ToolName,
		Payload:    progress.Payload{Description: spec.Description},
	})
	c.setScalar(r, progress.StatusRunning, stepPercent(index), label+" started")

	result, err := c.performStep(ctx, r.job, spec, view)
	elapsed := c.now().Sub(started)
	if err != nil {
		c.recordDuration(r, index, elapsed)
		tracing.RecordError(span, err)
		return err
	}
	if err := c.finishStep(r, index, result, elapsed); err != nil {
		tracing.RecordError(span, err)
		return err
	}

	dropped := result.Normalized - len(result.Segments)
	if dropped > 0 {
		logging.WarnWithContext(logger, "segments dropped by validation", "segments_dropped",
			logging.Int("dropped", dropped),
			logging.Int("kept", len(result.Segments)),
			logging.Any("issues", result.Issues),
			logging.String(logging.FieldErrorHint, "inspect the tool output for placeholder paths or missing files"),
			logging.String(logging.FieldImpact, "invalid segments are excluded from later steps"),
		)
	}
	logger.Info(
		"step completed",
		logging.String(logging.FieldEventType, "step_complete"),
		logging.Int("segment_count", len(result.Segments)),
		logging.Int("source_step", result.SourceStep),
		logging.Bool("skipped", result.Skipped),
		logging.Duration("step_duration", elapsed),
	)

	payload := progress.Payload{
		Message:    label + " completed",
		Dropped:    dropped,
		Issues:     result.Issues,
		DurationMs: elapsed.Milliseconds(),
	}
	if spec.Segments {
		count := len(result.Segments)
		payload.SegmentCount = &count
	}
	if result.DeliverableURL != "" {
		payload.DeliverableURL = result.DeliverableURL
	}
	if result.Effects != nil {
		payload.Effects = string(result.Effects.Strategy)
	}
	c.publish(progress.WorkflowEvent{
		JobID:      r.job.ID,
		Kind:       progress.KindStepComplete,
		StepNumber: spec.Number,
		ToolName:   spec.ToolName,
		Payload:    payload,
	})
	c.setScalar(r, progress.StatusRunning, stepPercent(index+1), label+" completed")

	c.reflect(ctx, r, index, spec, result, elapsed)

	c.mu.RLock()
	snap := c.snapshotLocked(r)
	c.mu.RUnlock()
	c.persist(ctx, snap)

	tracing.SetOK(span)
	return nil
}

func (c *Coordinator) beginStep(r *run, index int) (adapter.RunView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := r.state.advance(index); err != nil {
		return adapter.RunView{}, services.Wrap(services.ErrConfiguration, "workflow", "advance", "", err)
	}
	if err := r.state.Steps[index].transition(StepExecuting); err != nil {
		return adapter.RunView{}, services.Wrap(services.ErrConfiguration, "workflow", "advance", "", err)
	}
	return r.state.view(r.job), nil
}

func (c *Coordinator) finishStep(r *run, index int, result *StepResult, elapsed time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	step := &r.state.Steps[index]
	if err := step.transition(StepCompleted); err != nil {
		return services.Wrap(services.ErrConfiguration, "workflow", "complete step", "", err)
	}
	step.Result = result
	step.DurationMs = elapsed.Milliseconds()
	return nil
}

func (c *Coordinator) recordDuration(r *run, index int, elapsed time.Duration) {
	c.mu.Lock()
	r.state.Steps[index].DurationMs = elapsed.Milliseconds()
	c.mu.Unlock()
}

// performStep builds arguments, invokes the tool and interprets its output.
func (c *Coordinator) performStep(ctx context.Context, job Job, spec adapter.StepSpec, view adapter.RunView) (*StepResult, error) {
	args, err := adapter.PrepareArgs(view, spec.Number)
	if err != nil {
		return nil, err
	}

	if spec.Optional && len(args.Segments) == 0 {
		logging.WithContext(ctx, c.logger).Info(
			"nothing to refine; passing an empty list through",
			logging.String(logging.FieldEventType, "step_skipped"),
		)
		return &StepResult{Raw: json.RawMessage("[]"), Segments: []segment.Segment{}, Skipped: true}, nil
	}

	var plan *effects.Plan
	if spec.ToolName == adapter.ToolRenderFinal {
		chosen := c.planEffects(ctx, job, args.Segments)
		plan = &chosen
		args.Effects = plan
	}

	raw, err := c.invoke(ctx, spec, args)
	if err != nil {
		return nil, err
	}
	result, err := c.interpret(spec, raw)
	if err != nil {
		return nil, err
	}
	result.SourceStep = args.SourceStep
	result.Effects = plan
	return result, nil
}

func (c *Coordinator) invoke(ctx context.Context, spec adapter.StepSpec, args adapter.StepArgs) (json.RawMessage, error) {
	if c.executor == nil {
		return nil, services.Wrap(services.ErrConfiguration, spec.ToolName, "execute", "no step executor configured", nil)
	}
	raw, err := c.executor.Execute(ctx, spec.ToolName, args)
	if err == nil {
		return raw, nil
	}
	if errors.Is(err, context.Canceled) {
		return nil, services.Wrap(services.ErrTransient, spec.ToolName, "execute", "run cancelled", err)
	}
	if services.KindOf(err) == services.KindUnknown {
		return nil, services.Wrap(services.ErrToolExecution, spec.ToolName, "execute", "tool failed", err)
	}
	return nil, err
}

// interpret turns raw tool output into a step result. Segment-producing steps
// are canonicalized and validated; the render step must name a deliverable.
func (c *Coordinator) interpret(spec adapter.StepSpec, raw json.RawMessage) (*StepResult, error) {
	if !spec.Segments {
		url, ok := adapter.DeliverableURL(raw)
		if !ok {
			err := services.Wrap(services.ErrValidation, spec.ToolName, "read output", "render returned no deliverable URL", nil)
			return nil, services.WithHint(err, "check the render tool's upload step")
		}
		return &StepResult{Raw: raw, Segments: []segment.Segment{}, DeliverableURL: url}, nil
	}

	segs, err := c.canon.Canonicalize(raw)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, spec.ToolName, "canonicalize output", "tool output is not segment-shaped", err)
	}
	validation := c.validator.Validate(segs, stepLabel(spec.ToolName))
	return &StepResult{
		Raw:        raw,
		Normalized: len(segs),
		Segments:   validation.Valid,
		Issues:     validation.IssueStrings(),
		DropCause:  validation.Cause(),
	}, nil
}

// planEffects probes the stitched reel and picks the richest safe strategy.
func (c *Coordinator) planEffects(ctx context.Context, job Job, segs []segment.Segment) effects.Plan {
	var probe effects.DurationProbe
	if len(segs) == 1 {
		probe = effects.ForPath(c.prober, segs[0].FilePath)
	} else {
		count := len(segs)
		probe = effects.ProbeFunc(func(context.Context) (float64, error) {
			return 0, fmt.Errorf("render input has %d segments; expected one stitched reel", count)
		})
	}
	return c.planner.PlanEffects(ctx, probe, c.flags, job.AddWatermark)
}

func (c *Coordinator) reflect(ctx context.Context, r *run, index int, spec adapter.StepSpec, result *StepResult, elapsed time.Duration) {
	if c.summarize == nil {
		return
	}
	summary := reflection.Summary{
		JobID:          r.job.ID,
		Prompt:         r.job.Prompt,
		StepNumber:     spec.Number,
		TotalSteps:     adapter.StepCount,
		ToolName:       spec.ToolName,
		Description:    spec.Description,
		SourceStep:     result.SourceStep,
		SegmentCount:   len(result.Segments),
		Dropped:        result.Normalized - len(result.Segments),
		Issues:         result.Issues,
		DurationMs:     elapsed.Milliseconds(),
		DeliverableURL: result.DeliverableURL,
	}
	if result.Effects != nil {
		summary.Effects = string(result.Effects.Strategy)
	}
	text, err := c.summarize.Summarize(ctx, summary)
	if err != nil || text == "" {
		if err == nil {
			err = errors.New("empty reflection")
		}
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "step reflection unavailable", "reflection_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no reflection is published for this step"),
		)
		return
	}

	c.mu.Lock()
	r.state.Steps[index].Reflection = text
	c.mu.Unlock()
	c.publish(progress.WorkflowEvent{
		JobID:      r.job.ID,
		Kind:       progress.KindStepReflection,
		StepNumber: spec.Number,
		ToolName:   spec.ToolName,
		Payload:    progress.Payload{Reflection: text},
	})
}
