package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge/internal/segment"
	"reelforge/internal/services"
)

func seg(path string) segment.Segment {
	return segment.Segment{StartTime: 0, EndTime: 1, FilePath: path, Score: 0.5, StrategyTag: "t"}
}

func view(outputs ...StepOutput) RunView {
	run := RunView{JobID: "job", VideoID: "vid", Prompt: "goals", Outputs: map[int]StepOutput{}}
	for _, out := range outputs {
		run.Outputs[out.StepNumber] = out
	}
	return run
}

func TestPrepareArgsFirstStepUsesRequestOnly(t *testing.T) {
	args, err := PrepareArgs(view(), 1)
	require.NoError(t, err)
	assert.Equal(t, "vid", args.VideoID)
	assert.Equal(t, "goals", args.Prompt)
	assert.Empty(t, args.Segments)
	assert.Zero(t, args.SourceStep)
}

func TestPrepareArgsUsesImmediatePredecessor(t *testing.T) {
	run := view(
		StepOutput{StepNumber: 1, Completed: true, Normalized: 2, Segments: []segment.Segment{seg("a"), seg("b")}},
	)
	args, err := PrepareArgs(run, 2)
	require.NoError(t, err)
	assert.Len(t, args.Segments, 2)
	assert.Equal(t, 1, args.SourceStep)
}

func TestPrepareArgsStitchFallsBackPastEmptySmartCuts(t *testing.T) {
	run := view(
		StepOutput{StepNumber: 2, Completed: true, Normalized: 3, Segments: []segment.Segment{seg("a"), seg("b")}},
		StepOutput{StepNumber: 3, Completed: true, Normalized: 0},
	)
	args, err := PrepareArgs(run, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, args.SourceStep)
	assert.Len(t, args.Segments, 2)
}

func TestPrepareArgsRenderDoesNotLookPastStitch(t *testing.T) {
	run := view(
		StepOutput{StepNumber: 3, Completed: true, Normalized: 1, Segments: []segment.Segment{seg("a")}},
		StepOutput{StepNumber: 4, Completed: true, Normalized: 0},
	)
	_, err := PrepareArgs(run, 5)
	require.ErrorIs(t, err, services.ErrNoInputAvailable)
}

func TestPrepareArgsSmartCutsAcceptsEmptyUpstream(t *testing.T) {
	run := view(StepOutput{StepNumber: 2, Completed: true, Normalized: 0})
	args, err := PrepareArgs(run, 3)
	require.NoError(t, err)
	assert.NotNil(t, args.Segments)
	assert.Empty(t, args.Segments)
}

func TestPrepareArgsFailsWhenSelectedSourceLostEverything(t *testing.T) {
	run := view(StepOutput{StepNumber: 2, Completed: true, Normalized: 1})
	_, err := PrepareArgs(run, 3)
	require.ErrorIs(t, err, services.ErrNoInputAvailable)
	assert.Equal(t, services.CodeNoRelevantContent, services.Details(err).Code)
	assert.Contains(t, err.Error(), "smart_cuts")
}

func TestPrepareArgsCodesRejectedBatchByCause(t *testing.T) {
	cases := []struct {
		cause segment.Check
		step  int
		code  string
		hint  string
	}{
		{segment.CheckFile, 3, services.CodeMissingFile, "not on disk"},
		{segment.CheckFilePath, 3, services.CodeInvalidOutput, "placeholder paths"},
		{segment.CheckEndTime, 4, services.CodeInvalidOutput, "refusing to stitch an empty reel"},
	}
	for _, tc := range cases {
		t.Run(string(tc.cause), func(t *testing.T) {
			run := view(
				StepOutput{StepNumber: 2, Completed: true, Normalized: 2, DropCause: tc.cause},
				StepOutput{StepNumber: 3, Completed: true, Normalized: 2, DropCause: tc.cause},
			)
			_, err := PrepareArgs(run, tc.step)
			require.ErrorIs(t, err, services.ErrNoInputAvailable)
			details := services.Details(err)
			assert.Equal(t, tc.code, details.Code)
			assert.Contains(t, details.Hint, tc.hint)
			assert.Contains(t, err.Error(), "failed validation")
		})
	}
}

func TestPrepareArgsCopiesSegments(t *testing.T) {
	upstream := []segment.Segment{seg("a")}
	run := view(StepOutput{StepNumber: 1, Completed: true, Normalized: 1, Segments: upstream})
	args, err := PrepareArgs(run, 2)
	require.NoError(t, err)
	args.Segments[0].FilePath = "mutated"
	assert.Equal(t, "a", upstream[0].FilePath)
}

func TestPrepareArgsRejectsUnknownStep(t *testing.T) {
	_, err := PrepareArgs(view(), 6)
	require.ErrorIs(t, err, services.ErrConfiguration)
}

func TestPlanPreferenceLists(t *testing.T) {
	want := map[int][]int{1: nil, 2: {1}, 3: {2}, 4: {3, 2}, 5: {4}}
	for _, spec := range Plan() {
		if want[spec.Number] == nil {
			assert.Empty(t, spec.Sources)
			continue
		}
		assert.Equal(t, want[spec.Number], spec.Sources, spec.ToolName)
	}
	spec, ok := Spec(3)
	require.True(t, ok)
	assert.True(t, spec.AllowEmpty)
	assert.True(t, spec.Optional)
}
