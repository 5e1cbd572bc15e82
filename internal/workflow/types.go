package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"reelforge/internal/adapter"
	"reelforge/internal/effects"
	"reelforge/internal/segment"
)

// Job is the immutable request a run is created from.
type Job struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"videoId"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"createdAt"`
	// AddWatermark requests a watermark on the rendered reel.
	AddWatermark bool `json:"addWatermark"`
}

// StepStatus is the lifecycle state of one step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepExecuting StepStatus = "executing"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

// StepResult is what a finished step contributes to the run.
type StepResult struct {
	Raw json.RawMessage `json:"-"`
	// Normalized counts segments produced by canonicalization, before validation.
	Normalized     int               `json:"normalized"`
	Segments       []segment.Segment `json:"segments"`
	Issues         []string          `json:"issues,omitempty"`
	DropCause      segment.Check     `json:"dropCause,omitempty"`
	SourceStep     int               `json:"sourceStep,omitempty"`
	DeliverableURL string            `json:"deliverableUrl,omitempty"`
	Effects        *effects.Plan     `json:"effects,omitempty"`
	// Skipped is set when the tool was not invoked because it had nothing to refine.
	Skipped bool `json:"skipped,omitempty"`
}

// StepState tracks one step of a run.
type StepState struct {
	StepNumber  int         `json:"stepNumber"`
	ToolName    string      `json:"toolName"`
	Description string      `json:"description"`
	Status      StepStatus  `json:"status"`
	Result      *StepResult `json:"result,omitempty"`
	Reflection  string      `json:"reflection,omitempty"`
	DurationMs  int64       `json:"durationMs"`
}

// transition moves the step along pending -> executing -> completed|failed.
func (s *StepState) transition(next StepStatus) error {
	allowed := false
	switch s.Status {
	case StepPending:
		allowed = next == StepExecuting
	case StepExecuting:
		allowed = next == StepCompleted || next == StepFailed
	}
	if !allowed {
		return fmt.Errorf("step %d (%s): invalid transition %s -> %s", s.StepNumber, s.ToolName, s.Status, next)
	}
	s.Status = next
	return nil
}

func (s StepState) clone() StepState {
	if s.Result == nil {
		return s
	}
	result := *s.Result
	result.Raw = append(json.RawMessage(nil), s.Result.Raw...)
	result.Segments = segment.Clone(s.Result.Segments)
	result.Issues = append([]string(nil), s.Result.Issues...)
	if s.Result.Effects != nil {
		plan := *s.Result.Effects
		plan.Reasons = append([]string(nil), plan.Reasons...)
		result.Effects = &plan
	}
	s.Result = &result
	return s
}

// RunState is the in-memory state of an active run.
type RunState struct {
	JobID string      `json:"jobId"`
	Steps []StepState `json:"steps"`
	// CurrentIndex is the 0-based index of the step being executed or last
	// executed. It never decreases.
	CurrentIndex int       `json:"currentIndex"`
	StartedAt    time.Time `json:"startedAt"`
	IsComplete   bool      `json:"isComplete"`
	FinalResult  string    `json:"finalResult,omitempty"`
}

func newRunState(jobID string, started time.Time) *RunState {
	plan := adapter.Plan()
	steps := make([]StepState, len(plan))
	for i, spec := range plan {
		steps[i] = StepState{
			StepNumber:  spec.Number,
			ToolName:    spec.ToolName,
			Description: spec.Description,
			Status:      StepPending,
		}
	}
	return &RunState{JobID: jobID, Steps: steps, StartedAt: started}
}

// advance moves CurrentIndex forward; moving backwards is rejected.
func (r *RunState) advance(index int) error {
	if index < r.CurrentIndex {
		return fmt.Errorf("run %s: current index cannot move from %d to %d", r.JobID, r.CurrentIndex, index)
	}
	if index >= len(r.Steps) {
		return fmt.Errorf("run %s: step index %d out of range", r.JobID, index)
	}
	r.CurrentIndex = index
	return nil
}

// view exposes completed results to the adapter.
func (r *RunState) view(job Job) adapter.RunView {
	outputs := make(map[int]adapter.StepOutput, len(r.Steps))
	for _, step := range r.Steps {
		if step.Result == nil {
			continue
		}
		outputs[step.StepNumber] = adapter.StepOutput{
			StepNumber: step.StepNumber,
			Completed:  step.Status == StepCompleted,
			Raw:        step.Result.Raw,
			Normalized: step.Result.Normalized,
			Segments:   step.Result.Segments,
			DropCause:  step.Result.DropCause,
		}
	}
	return adapter.RunView{JobID: job.ID, VideoID: job.VideoID, Prompt: job.Prompt, Outputs: outputs}
}

func (r *RunState) clone() RunState {
	out := *r
	out.Steps = make([]StepState, len(r.Steps))
	for i, step := range r.Steps {
		out.Steps[i] = step.clone()
	}
	return out
}
