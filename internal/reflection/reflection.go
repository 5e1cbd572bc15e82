// Package reflection produces the short narrative emitted after each step.
//
// An LLM-backed summarizer is used when an API key is configured; otherwise,
// and whenever the model call fails, a deterministic template summary is
// returned instead.
package reflection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/services/llm"
)

// Summary is the set of facts a reflection is written from. It is sent to the
// model as JSON, so the tags name what the model sees.
type Summary struct {
	JobID          string   `json:"-"`
	Prompt         string   `json:"request"`
	StepNumber     int      `json:"stepNumber"`
	TotalSteps     int      `json:"totalSteps,omitempty"`
	ToolName       string   `json:"tool"`
	Description    string   `json:"purpose,omitempty"`
	SourceStep     int      `json:"sourceStep,omitempty"`
	SegmentCount   int      `json:"segments"`
	Dropped        int      `json:"dropped,omitempty"`
	Issues         []string `json:"issues,omitempty"`
	DurationMs     int64    `json:"durationMs"`
	DeliverableURL string   `json:"deliverable,omitempty"`
	Effects        string   `json:"effects,omitempty"`
}

// Summarizer turns step facts into a sentence or two for the progress stream.
type Summarizer interface {
	Summarize(ctx context.Context, summary Summary) (string, error)
}

// New returns the summarizer appropriate for cfg.
func New(cfg *config.Config, logger *slog.Logger) Summarizer {
	if cfg == nil {
		return Template{}
	}
	settings := cfg.GetLLM()
	if settings.APIKey == "" {
		return Template{}
	}
	client := llm.NewClient(llm.Config{
		APIKey:         settings.APIKey,
		BaseURL:        settings.BaseURL,
		Model:          settings.Model,
		Referer:        settings.Referer,
		Title:          settings.Title,
		TimeoutSeconds: settings.TimeoutSeconds,
	})
	return NewLLM(client, logger)
}

// Template renders a fixed-format summary without any external calls.
type Template struct{}

// Summarize implements Summarizer.
func (Template) Summarize(_ context.Context, s Summary) (string, error) {
	var b strings.Builder
	label := s.Description
	if label == "" {
		label = s.ToolName
	}
	fmt.Fprintf(&b, "Step %d (%s) finished in %s", s.StepNumber, label, formatMillis(s.DurationMs))
	switch {
	case s.DeliverableURL != "":
		fmt.Fprintf(&b, " and published %s", s.DeliverableURL)
	case s.SegmentCount == 0:
		b.WriteString(" with no segments")
	case s.SegmentCount == 1:
		b.WriteString(" with 1 segment")
	default:
		fmt.Fprintf(&b, " with %d segments", s.SegmentCount)
	}
	if s.SourceStep > 0 && s.SourceStep != s.StepNumber-1 {
		fmt.Fprintf(&b, ", reading from step %d", s.SourceStep)
	}
	b.WriteString(".")
	if s.Dropped > 0 {
		fmt.Fprintf(&b, " %d invalid segment(s) were dropped.", s.Dropped)
	}
	if s.Effects != "" {
		fmt.Fprintf(&b, " Effects: %s.", s.Effects)
	}
	return b.String(), nil
}

type reflector interface {
	Reflect(ctx context.Context, req llm.Request) (llm.Reflection, error)
}

// LLM asks a chat model for the reflection.
type LLM struct {
	client   reflector
	fallback Template
	logger   *slog.Logger
}

// NewLLM wraps client. *llm.Client satisfies the client contract.
func NewLLM(client reflector, logger *slog.Logger) *LLM {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LLM{client: client, logger: logging.NewComponentLogger(logger, "reflection")}
}

const instructions = `You narrate progress of a video editing pipeline for the person who requested the edit.
The user message is a JSON object describing one finished step. Reply with JSON {"summary": "..."}.
The summary is at most two plain sentences. Mention segment counts and dropped segments when they matter, and never invent facts.`

// reflectionTokens fits two sentences of narration.
const reflectionTokens = 120

// Summarize implements Summarizer. Model failures fall back to the template.
func (l *LLM) Summarize(ctx context.Context, s Summary) (string, error) {
	if l == nil || l.client == nil {
		return Template{}.Summarize(ctx, s)
	}
	reflection, err := l.client.Reflect(ctx, llm.Request{Instructions: instructions, Facts: s, MaxTokens: reflectionTokens})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logging.WarnWithContext(logging.WithContext(ctx, l.logger), "llm reflection failed; using template", "reflection_fallback",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check llm api key and model"),
			logging.Bool("paused", errors.Is(err, llm.ErrUnavailable)),
			logging.String(logging.FieldImpact, "step reflection uses template text"),
		)
		return l.fallback.Summarize(ctx, s)
	}
	return reflection.Summary, nil
}

func formatMillis(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}
