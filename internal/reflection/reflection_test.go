package reflection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge/internal/config"
	"reelforge/internal/services/llm"
)

type stubReflector struct {
	summary string
	err     error
	req     llm.Request
}

func (s *stubReflector) Reflect(_ context.Context, req llm.Request) (llm.Reflection, error) {
	s.req = req
	if s.err != nil {
		return llm.Reflection{}, s.err
	}
	return llm.Reflection{Summary: s.summary}, nil
}

func TestTemplateSummaries(t *testing.T) {
	ctx := context.Background()

	text, err := Template{}.Summarize(ctx, Summary{StepNumber: 2, Description: "Extract highlight clips", SegmentCount: 3, Dropped: 1, DurationMs: 1500})
	require.NoError(t, err)
	assert.Equal(t, "Step 2 (Extract highlight clips) finished in 1.5s with 3 segments. 1 invalid segment(s) were dropped.", text)

	text, err = Template{}.Summarize(ctx, Summary{StepNumber: 4, ToolName: "stitch_segments", SourceStep: 2, SegmentCount: 1, DurationMs: 20})
	require.NoError(t, err)
	assert.Equal(t, "Step 4 (stitch_segments) finished in 20ms with 1 segment, reading from step 2.", text)

	text, err = Template{}.Summarize(ctx, Summary{StepNumber: 5, ToolName: "render_final", DeliverableURL: "https://cdn/x.mp4", Effects: "fade_in_only"})
	require.NoError(t, err)
	assert.Contains(t, text, "published https://cdn/x.mp4")
	assert.Contains(t, text, "Effects: fade_in_only.")
}

func TestLLMSummarizerUsesModel(t *testing.T) {
	stub := &stubReflector{summary: "Found five moments."}
	summarizer := NewLLM(stub, nil)

	text, err := summarizer.Summarize(context.Background(), Summary{Prompt: "goals", StepNumber: 1, ToolName: "semantic_search", SegmentCount: 5})
	require.NoError(t, err)
	assert.Equal(t, "Found five moments.", text)
	assert.Contains(t, stub.req.Instructions, `{"summary": "..."}`)
	assert.Equal(t, reflectionTokens, stub.req.MaxTokens)
	facts, err := json.Marshal(stub.req.Facts)
	require.NoError(t, err)
	assert.JSONEq(t, `{"request":"goals","stepNumber":1,"tool":"semantic_search","segments":5,"durationMs":0}`, string(facts))
}

func TestLLMSummarizerFallsBackOnError(t *testing.T) {
	summarizer := NewLLM(&stubReflector{err: errors.New("boom")}, nil)

	text, err := summarizer.Summarize(context.Background(), Summary{StepNumber: 1, ToolName: "semantic_search", SegmentCount: 2})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Step 1 (semantic_search)"))
}

func TestLLMSummarizerHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summarizer := NewLLM(&stubReflector{err: context.Canceled}, nil)

	_, err := summarizer.Summarize(ctx, Summary{StepNumber: 1})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewPicksTemplateWithoutKey(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = ""
	_, ok := New(&cfg, nil).(Template)
	assert.True(t, ok)

	cfg.LLM.APIKey = "key"
	_, ok = New(&cfg, nil).(*LLM)
	assert.True(t, ok)
}
