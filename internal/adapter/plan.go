package adapter

// Tool names of the fixed pipeline, in execution order.
const (
	ToolSemanticSearch    = "semantic_search"
	ToolExtractHighlights = "extract_highlights"
	ToolSmartCuts         = "smart_cuts"
	ToolStitchSegments    = "stitch_segments"
	ToolRenderFinal       = "render_final"
)

// StepCount is the number of steps in every run.
const StepCount = 5

// StepSpec declares a step's tool and where it reads its input from.
type StepSpec struct {
	Number      int
	ToolName    string
	Description string
	// Sources lists upstream step numbers in preference order. Empty means the
	// step consumes only the job request.
	Sources []int
	// AllowEmpty lets the step run with an empty segment list when no upstream
	// produced anything.
	AllowEmpty bool
	// Optional marks refinement steps that a consumer may look past.
	Optional bool
	// Segments reports whether the step's output is canonicalized into segments.
	Segments bool
}

// A step reads its immediate predecessor and looks one step further back only
// when that predecessor is optional.
var plan = []StepSpec{
	{Number: 1, ToolName: ToolSemanticSearch, Description: "Find moments matching the prompt", Segments: true},
	{Number: 2, ToolName: ToolExtractHighlights, Description: "Extract highlight clips", Sources: []int{1}, Segments: true},
	{Number: 3, ToolName: ToolSmartCuts, Description: "Refine cut points", Sources: []int{2}, AllowEmpty: true, Optional: true, Segments: true},
	{Number: 4, ToolName: ToolStitchSegments, Description: "Stitch clips into a reel", Sources: []int{3, 2}, Segments: true},
	{Number: 5, ToolName: ToolRenderFinal, Description: "Render and publish the final video", Sources: []int{4}},
}

// Plan returns a copy of the fixed step plan.
func Plan() []StepSpec {
	out := make([]StepSpec, len(plan))
	for i, spec := range plan {
		spec.Sources = append([]int(nil), spec.Sources...)
		out[i] = spec
	}
	return out
}

// Spec returns the spec for a 1-based step number.
func Spec(step int) (StepSpec, bool) {
	if step < 1 || step > len(plan) {
		return StepSpec{}, false
	}
	spec := plan[step-1]
	spec.Sources = append([]int(nil), spec.Sources...)
	return spec, true
}
