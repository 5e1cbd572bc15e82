package services

import "context"

type contextKey string

const (
	jobIDKey     contextKey = "job_id"
	stepKey      contextKey = "step"
	toolKey      contextKey = "tool"
	requestIDKey contextKey = "request_id"
)

// WithJobID annotates context with the workflow job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStep annotates context with the 1-based pipeline step number.
func WithStep(ctx context.Context, step int) context.Context {
	if step <= 0 {
		return ctx
	}
	return context.WithValue(ctx, stepKey, step)
}

// StepFromContext returns the step number if present.
func StepFromContext(ctx context.Context) (int, bool) {
	switch val := ctx.Value(stepKey).(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	default:
		return 0, false
	}
}

// WithTool annotates context with the tool invoked by the current step.
func WithTool(ctx context.Context, tool string) context.Context {
	if tool == "" {
		return ctx
	}
	return context.WithValue(ctx, toolKey, tool)
}

// ToolFromContext returns the tool name if present.
func ToolFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(toolKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
