package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrToolExecution, "render_final", "invoke", "failed", base)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrToolExecution)
	assert.ErrorIs(t, err, base)
	for _, fragment := range []string{"render_final", "invoke", "failed", "boom"} {
		assert.Contains(t, err.Error(), fragment)
	}
}

func TestDetailsCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind services.Kind
		code string
	}{
		{"no input", services.Wrap(services.ErrNoInputAvailable, "smart_cuts", "prepare", "nothing", nil), services.KindNoInput, services.CodeNoRelevantContent},
		{"validation", services.Wrap(services.ErrValidation, "extract_highlights", "validate", "bad", nil), services.KindValidation, services.CodeInvalidOutput},
		{"missing file", services.Wrap(services.ErrNotFound, "stitch_segments", "stat", "gone", nil), services.KindNotFound, services.CodeMissingFile},
		{"encoding", services.Wrap(services.ErrEncoding, "render_final", "ffmpeg", "exit 1", nil), services.KindEncoding, services.CodeEncodingFailure},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), services.KindTimeout, services.CodeTransient},
		{"tool", services.Wrap(services.ErrToolExecution, "semantic_search", "invoke", "exit 2", nil), services.KindToolExecution, services.CodeToolFailure},
		{"plain", errors.New("mystery"), services.KindUnknown, services.CodeToolFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			details := services.Details(tc.err)
			assert.Equal(t, tc.kind, details.Kind)
			assert.Equal(t, tc.code, details.Code)
			assert.NotEmpty(t, details.Message)
		})
	}
}

func TestWithCodeOverridesDerivedCode(t *testing.T) {
	err := services.Wrap(services.ErrToolExecution, "render_final", "invoke", "ffmpeg exited", nil)
	err = services.WithCode(err, services.CodeEncodingFailure)
	err = services.WithHint(err, "check ffmpeg logs")

	details := services.Details(err)
	assert.Equal(t, services.CodeEncodingFailure, details.Code)
	assert.Equal(t, "check ffmpeg logs", details.Hint)
	assert.Equal(t, "render_final", details.Stage)
	assert.ErrorIs(t, err, services.ErrToolExecution)
}

func TestToolErrorWrappingTimeoutIsRetryable(t *testing.T) {
	err := services.Wrap(services.ErrToolExecution, "semantic_search", "invoke", "request failed", context.DeadlineExceeded)
	assert.True(t, services.IsRetryable(err))
	assert.False(t, services.IsRetryable(services.Wrap(services.ErrValidation, "", "", "bad", nil)))
	assert.True(t, strings.HasPrefix(err.Error(), "tool execution error"))
}
