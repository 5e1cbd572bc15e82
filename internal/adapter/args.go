package adapter

import (
	"encoding/json"
	"fmt"

	"reelforge/internal/effects"
	"reelforge/internal/segment"
	"reelforge/internal/services"
)

// StepArgs are the named arguments passed to a step tool.
type StepArgs struct {
	JobID      string            `json:"jobId"`
	VideoID    string            `json:"videoId"`
	Prompt     string            `json:"prompt"`
	StepNumber int               `json:"stepNumber"`
	Segments   []segment.Segment `json:"segments"`
	// SourceStep is the upstream step the segments were taken from, 0 when none.
	SourceStep int           `json:"sourceStep,omitempty"`
	Effects    *effects.Plan `json:"effects,omitempty"`
}

// StepOutput is what the adapter needs to know about a finished step.
type StepOutput struct {
	StepNumber int
	Completed  bool
	Raw        json.RawMessage
	// Normalized counts the items canonicalization produced before validation.
	Normalized int
	// Segments holds the items that passed validation.
	Segments []segment.Segment
	// DropCause is the check most dropped items failed, empty when none were.
	DropCause segment.Check
}

// RunView is a read-only view of a run used to build step arguments.
type RunView struct {
	JobID   string
	VideoID string
	Prompt  string
	Outputs map[int]StepOutput
}

// PrepareArgs builds the arguments for the 1-based step from the run so far.
//
// The first source in the step's preference list whose output normalized to at
// least one item is selected. If that source lost every item to validation, or
// no source produced anything and the step requires input, the call fails with
// services.ErrNoInputAvailable.
func PrepareArgs(run RunView, step int) (StepArgs, error) {
	spec, ok := Spec(step)
	if !ok {
		return StepArgs{}, services.Wrap(services.ErrConfiguration, "adapter", "prepare args", fmt.Sprintf("unknown step %d", step), nil)
	}
	args := StepArgs{
		JobID:      run.JobID,
		VideoID:    run.VideoID,
		Prompt:     run.Prompt,
		StepNumber: step,
		Segments:   []segment.Segment{},
	}
	if len(spec.Sources) == 0 {
		return args, nil
	}

	for _, source := range spec.Sources {
		out, ok := run.Outputs[source]
		if !ok || !out.Completed || out.Normalized == 0 {
			continue
		}
		if len(out.Segments) == 0 {
			message := fmt.Sprintf("all %d segments from step %d failed validation", out.Normalized, source)
			return StepArgs{}, noInput(spec, source, message, out.DropCause)
		}
		args.Segments = segment.Clone(out.Segments)
		args.SourceStep = source
		return args, nil
	}

	if spec.AllowEmpty {
		return args, nil
	}
	return StepArgs{}, noInput(spec, 0, fmt.Sprintf("no upstream step (%v) produced segments", spec.Sources), "")
}

// noInput fails a step that has nothing to work on. cause is the check the
// selected upstream's segments failed, or "" when upstream found nothing.
func noInput(spec StepSpec, source int, message string, cause segment.Check) error {
	var code, advice string
	switch cause {
	case "":
		advice = "no relevant content found; try a different prompt"
		if spec.ToolName == ToolStitchSegments {
			advice = "try a broader prompt"
		}
	case segment.CheckFile:
		code = services.CodeMissingFile
		message += ": media files are missing"
		advice = fmt.Sprintf("step %d reported clips that are not on disk; check the tool's output directory and retry", source)
	default:
		code = services.CodeInvalidOutput
		message += fmt.Sprintf(": %s check failed", cause)
		advice = fmt.Sprintf("step %d returned placeholder paths or unusable time ranges; check the tool's response", source)
	}

	err := services.Wrap(services.ErrNoInputAvailable, spec.ToolName, "prepare args", message, nil)
	if code != "" {
		err = services.WithCode(err, code)
	}
	if spec.ToolName == ToolStitchSegments {
		advice = "refusing to stitch an empty reel; " + advice
	}
	return services.WithHint(err, advice)
}
