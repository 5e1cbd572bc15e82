package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge/internal/effects"
	"reelforge/internal/jobstore"
	"reelforge/internal/preflight"
	"reelforge/internal/progress"
	"reelforge/internal/segment"
	"reelforge/internal/workflow"
)

func TestFromJobViewSummarizesSteps(t *testing.T) {
	created := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("x", 3600))
	view := workflow.JobView{
		Job: workflow.Job{ID: "j1", VideoID: "v1", Prompt: "goals", CreatedAt: created},
		Run: workflow.RunState{
			JobID:        "j1",
			CurrentIndex: 1,
			Steps: []workflow.StepState{
				{StepNumber: 1, ToolName: "semantic_search", Status: workflow.StepCompleted, DurationMs: 40,
					Result: &workflow.StepResult{Segments: make([]segment.Segment, 3)}},
				{StepNumber: 2, ToolName: "extract_highlights", Status: workflow.StepExecuting,
					Result: &workflow.StepResult{Effects: &effects.Plan{Strategy: effects.StrategyFadeInOnly}}},
			},
		},
		Progress: progress.ScalarProgress{JobID: "j1", Status: progress.StatusRunning, Percent: 30, Message: "Extracting"},
	}

	dto := FromJobView(view)
	assert.Equal(t, "j1", dto.JobID)
	assert.True(t, dto.Active)
	assert.Equal(t, 2, dto.CurrentStep)
	assert.Equal(t, 30, dto.Percent)
	assert.Equal(t, "2026-03-04T04:06:07.000Z", dto.CreatedAt)
	assert.Equal(t, string(effects.StrategyFadeInOnly), dto.EffectsStrategy)
	require.Len(t, dto.Steps, 2)
	assert.Equal(t, 3, dto.Steps[0].SegmentCount)
	assert.Equal(t, "executing", dto.Steps[1].Status)
	assert.False(t, dto.Terminal())
}

func TestFromSnapshotCopiesFields(t *testing.T) {
	snap := jobstore.Snapshot{
		JobID:     "j2",
		Status:    progress.StatusFailed,
		ErrorCode: "transient",
		Steps:     []jobstore.StepRecord{{StepNumber: 1, ToolName: "semantic_search", Status: "failed"}},
	}
	dto := FromSnapshot(snap)
	assert.False(t, dto.Active)
	assert.Equal(t, "transient", dto.ErrorCode)
	assert.Empty(t, dto.CreatedAt)
	assert.True(t, dto.Terminal())
	require.Len(t, dto.Steps, 1)
	assert.Equal(t, "semantic_search", dto.Steps[0].ToolName)

	assert.Nil(t, FromSnapshots(nil))
	assert.Len(t, FromSnapshots([]jobstore.Snapshot{snap, snap}), 2)
}

func TestFromPreflight(t *testing.T) {
	checks := FromPreflight([]preflight.Result{{Name: "Tool server", Passed: false, Detail: "refused"}})
	require.Len(t, checks, 1)
	assert.Equal(t, CheckResult{Name: "Tool server", Passed: false, Detail: "refused"}, checks[0])
}

func TestStreamEnvelopeTerminal(t *testing.T) {
	assert.False(t, StreamEnvelope{}.Terminal())
	assert.True(t, StreamEnvelope{Scalar: &progress.ScalarProgress{Status: progress.StatusCompleted}}.Terminal())
	assert.False(t, StreamEnvelope{Workflow: &progress.WorkflowEvent{Kind: progress.KindStepStart}}.Terminal())
	assert.True(t, StreamEnvelope{Workflow: &progress.WorkflowEvent{Kind: progress.KindError}}.Terminal())
}
