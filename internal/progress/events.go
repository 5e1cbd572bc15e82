package progress

import "time"

// Channel identifies one of the two progress topics.
type Channel string

const (
	ChannelScalar   Channel = "scalar"
	ChannelWorkflow Channel = "workflow"
)

// Event is implemented by every payload a Topic can carry.
type Event interface {
	// Terminal reports whether the event ends the job's stream. Terminal events
	// are never dropped from a subscriber's mailbox.
	Terminal() bool
}

// Scalar statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ScalarProgress is the coarse status snapshot of a job.
type ScalarProgress struct {
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// Terminal reports whether the job reached completed or failed.
func (p ScalarProgress) Terminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}

// Kind enumerates workflow event kinds.
type Kind string

const (
	KindInitial          Kind = "initial"
	KindStepStart        Kind = "step_start"
	KindStepComplete     Kind = "step_complete"
	KindStepReflection   Kind = "step_reflection"
	KindWorkflowComplete Kind = "workflow_complete"
	KindError            Kind = "error"
)

// Payload carries the kind-specific details of a WorkflowEvent.
type Payload struct {
	Message        string   `json:"message,omitempty"`
	Description    string   `json:"description,omitempty"`
	Reflection     string   `json:"reflection,omitempty"`
	DeliverableURL string   `json:"deliverableUrl,omitempty"`
	Code           string   `json:"code,omitempty"`
	Retryable      bool     `json:"retryable,omitempty"`
	SegmentCount   *int     `json:"segmentCount,omitempty"`
	Dropped        int      `json:"dropped,omitempty"`
	Issues         []string `json:"issues,omitempty"`
	DurationMs     int64    `json:"durationMs,omitempty"`
	TotalSteps     int      `json:"totalSteps,omitempty"`
	Effects        string   `json:"effects,omitempty"`
}

// WorkflowEvent describes a step lifecycle transition of one job.
type WorkflowEvent struct {
	JobID      string    `json:"jobId"`
	Kind       Kind      `json:"kind"`
	StepNumber int       `json:"stepNumber"`
	ToolName   string    `json:"toolName,omitempty"`
	Payload    Payload   `json:"payload"`
	Timestamp  time.Time `json:"timestamp"`
}

// Terminal reports whether the event is workflow_complete or error.
func (e WorkflowEvent) Terminal() bool {
	return e.Kind == KindWorkflowComplete || e.Kind == KindError
}
