package jobstore

import "time"

// Status values stored for a job. They mirror the scalar progress statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// StepRecord is the persisted summary of one step.
type StepRecord struct {
	StepNumber   int    `json:"stepNumber"`
	ToolName     string `json:"toolName"`
	Status       string `json:"status"`
	DurationMs   int64  `json:"durationMs,omitempty"`
	SegmentCount int    `json:"segmentCount,omitempty"`
	Reflection   string `json:"reflection,omitempty"`
}

// Snapshot is the durable view of a job at one point in time.
type Snapshot struct {
	JobID           string
	VideoID         string
	Prompt          string
	Status          string
	Percent         int
	Message         string
	CurrentStep     int
	ToolName        string
	ErrorCode       string
	DeliverableURL  string
	EffectsStrategy string
	Steps           []StepRecord
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsTerminal reports whether the snapshot describes a finished job.
func (s Snapshot) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}
