package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepTransitions(t *testing.T) {
	allowed := map[StepStatus][]StepStatus{
		StepPending:   {StepExecuting},
		StepExecuting: {StepCompleted, StepFailed},
	}
	all := []StepStatus{StepPending, StepExecuting, StepCompleted, StepFailed}
	for _, from := range all {
		for _, to := range all {
			step := StepState{StepNumber: 1, ToolName: "semantic_search", Status: from}
			err := step.transition(to)
			want := false
			for _, ok := range allowed[from] {
				if ok == to {
					want = true
				}
			}
			if want {
				assert.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, step.Status)
			} else {
				assert.Error(t, err, "%s -> %s", from, to)
				assert.Equal(t, from, step.Status)
			}
		}
	}
}

func TestRunStateFollowsPlan(t *testing.T) {
	state := newRunState("job", time.Now())
	require.Len(t, state.Steps, 5)
	tools := []string{"semantic_search", "extract_highlights", "smart_cuts", "stitch_segments", "render_final"}
	for i, step := range state.Steps {
		assert.Equal(t, i+1, step.StepNumber)
		assert.Equal(t, tools[i], step.ToolName)
		assert.Equal(t, StepPending, step.Status)
	}
}

func TestCurrentIndexNeverDecreases(t *testing.T) {
	state := newRunState("job", time.Now())
	require.NoError(t, state.advance(2))
	require.Error(t, state.advance(1))
	require.Error(t, state.advance(5))
	assert.Equal(t, 2, state.CurrentIndex)
}

func TestCloneIsDeep(t *testing.T) {
	state := newRunState("job", time.Now())
	state.Steps[0].Result = &StepResult{Issues: []string{"a"}}
	dup := state.clone()
	dup.Steps[0].Result.Issues[0] = "b"
	dup.Steps[0].Status = StepFailed
	assert.Equal(t, "a", state.Steps[0].Result.Issues[0])
	assert.Equal(t, StepPending, state.Steps[0].Status)
}

func TestStepLabel(t *testing.T) {
	assert.Equal(t, "Smart Cuts", stepLabel("smart_cuts"))
	assert.Equal(t, "Render Final", stepLabel("render_final"))
	assert.Equal(t, "Workflow", stepLabel(""))
}
