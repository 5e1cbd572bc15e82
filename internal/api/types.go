package api

import "reelforge/internal/progress"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// CreateJobRequest is the body of POST /api/jobs.
type CreateJobRequest struct {
	VideoID string `json:"videoId"`
	Prompt  string `json:"prompt"`
}

// CreateJobResponse acknowledges a created job.
type CreateJobResponse struct {
	JobID string `json:"jobId"`
}

// StepSummary describes one step of a job.
type StepSummary struct {
	StepNumber   int    `json:"stepNumber"`
	ToolName     string `json:"toolName"`
	Status       string `json:"status"`
	DurationMs   int64  `json:"durationMs,omitempty"`
	SegmentCount int    `json:"segmentCount,omitempty"`
	Reflection   string `json:"reflection,omitempty"`
}

// JobStatus is the response of GET /api/jobs/{id}.
type JobStatus struct {
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Percent int    `json:"percent"`
	Message string `json:"message"`

	VideoID         string        `json:"videoId,omitempty"`
	Prompt          string        `json:"prompt,omitempty"`
	Active          bool          `json:"active"`
	CurrentStep     int           `json:"currentStep,omitempty"`
	ErrorCode       string        `json:"errorCode,omitempty"`
	DeliverableURL  string        `json:"deliverableUrl,omitempty"`
	EffectsStrategy string        `json:"effectsStrategy,omitempty"`
	Steps           []StepSummary `json:"steps,omitempty"`
	CreatedAt       string        `json:"createdAt,omitempty"`
	UpdatedAt       string        `json:"updatedAt,omitempty"`
}

// Terminal reports whether the job finished.
func (s JobStatus) Terminal() bool {
	return s.Status == progress.StatusCompleted || s.Status == progress.StatusFailed
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []JobStatus `json:"jobs"`
}

// CheckResult mirrors one preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse is the response of GET /api/health.
type HealthResponse struct {
	Status     string         `json:"status"`
	ActiveJobs int            `json:"activeJobs"`
	JobCounts  map[string]int `json:"jobCounts,omitempty"`
	Checks     []CheckResult  `json:"checks"`
}

// Health statuses.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// StreamEnvelope carries one progress event on the job stream. Exactly one of
// Scalar and Workflow is set, matching Channel.
type StreamEnvelope struct {
	Channel  progress.Channel         `json:"channel"`
	Scalar   *progress.ScalarProgress `json:"scalar,omitempty"`
	Workflow *progress.WorkflowEvent  `json:"workflow,omitempty"`
}

// Terminal reports whether the envelope ends its channel's stream.
func (e StreamEnvelope) Terminal() bool {
	switch {
	case e.Scalar != nil:
		return e.Scalar.Terminal()
	case e.Workflow != nil:
		return e.Workflow.Terminal()
	default:
		return false
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
