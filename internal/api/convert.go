package api

import (
	"time"

	"reelforge/internal/jobstore"
	"reelforge/internal/preflight"
	"reelforge/internal/workflow"
)

// FromJobView converts an active run to its API representation.
func FromJobView(view workflow.JobView) JobStatus {
	dto := JobStatus{
		JobID:          view.Job.ID,
		Status:         view.Progress.Status,
		Percent:        view.Progress.Percent,
		Message:        view.Progress.Message,
		VideoID:        view.Job.VideoID,
		Prompt:         view.Job.Prompt,
		Active:         true,
		DeliverableURL: view.Run.FinalResult,
		CreatedAt:      formatTime(view.Job.CreatedAt),
	}
	if len(view.Run.Steps) > 0 {
		dto.CurrentStep = view.Run.Steps[view.Run.CurrentIndex].StepNumber
	}
	for _, step := range view.Run.Steps {
		summary := StepSummary{
			StepNumber: step.StepNumber,
			ToolName:   step.ToolName,
			Status:     string(step.Status),
			DurationMs: step.DurationMs,
			Reflection: step.Reflection,
		}
		if step.Result != nil {
			summary.SegmentCount = len(step.Result.Segments)
			if step.Result.Effects != nil {
				dto.EffectsStrategy = string(step.Result.Effects.Strategy)
			}
		}
		dto.Steps = append(dto.Steps, summary)
	}
	return dto
}

// FromSnapshot converts a persisted snapshot to its API representation.
func FromSnapshot(snap jobstore.Snapshot) JobStatus {
	dto := JobStatus{
		JobID:           snap.JobID,
		Status:          snap.Status,
		Percent:         snap.Percent,
		Message:         snap.Message,
		VideoID:         snap.VideoID,
		Prompt:          snap.Prompt,
		CurrentStep:     snap.CurrentStep,
		ErrorCode:       snap.ErrorCode,
		DeliverableURL:  snap.DeliverableURL,
		EffectsStrategy: snap.EffectsStrategy,
		CreatedAt:       formatTime(snap.CreatedAt),
		UpdatedAt:       formatTime(snap.UpdatedAt),
	}
	for _, step := range snap.Steps {
		dto.Steps = append(dto.Steps, StepSummary(step))
	}
	return dto
}

// FromSnapshots converts a slice of snapshots.
func FromSnapshots(snaps []jobstore.Snapshot) []JobStatus {
	if len(snaps) == 0 {
		return nil
	}
	out := make([]JobStatus, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, FromSnapshot(snap))
	}
	return out
}

// FromPreflight converts preflight results.
func FromPreflight(results []preflight.Result) []CheckResult {
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult(r))
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
