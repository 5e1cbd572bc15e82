package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge/internal/adapter"
	"reelforge/internal/config"
	"reelforge/internal/segment"
	"reelforge/internal/services"
)

func toolsConfig(baseURL string) config.Tools {
	return config.Tools{
		Executor:              config.ExecutorHTTP,
		BaseURL:               baseURL,
		RequestTimeoutSeconds: 5,
		BreakerMaxFailures:    2,
		BreakerTimeoutSeconds: 60,
	}
}

func TestHTTPExecutorPostsArguments(t *testing.T) {
	var got adapter.StepArgs
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tools/smart_cuts", r.URL.Path)
		assert.Equal(t, "job-1", r.Header.Get("X-Job-ID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"cuts":[{"filePath":"/tmp/a.mp4","start":1,"end":2}]}`))
	}))
	defer server.Close()

	exec := NewHTTPExecutor(toolsConfig(server.URL+"/tools/"), nil)
	args := adapter.StepArgs{
		JobID:      "job-1",
		VideoID:    "vid",
		Prompt:     "goals",
		StepNumber: 3,
		Segments:   []segment.Segment{{FilePath: "/tmp/a.mp4", StartTime: 0, EndTime: 5, Score: 0.8, StrategyTag: "x"}},
	}
	raw, err := exec.Execute(context.Background(), adapter.ToolSmartCuts, args)
	require.NoError(t, err)
	assert.JSONEq(t, `{"cuts":[{"filePath":"/tmp/a.mp4","start":1,"end":2}]}`, string(raw))
	assert.Equal(t, "goals", got.Prompt)
	require.Len(t, got.Segments, 1)
	assert.Equal(t, "/tmp/a.mp4", got.Segments[0].FilePath)
}

func TestHTTPExecutorClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		marker error
		code   string
	}{
		{"server error", http.StatusBadGateway, `{"error":"upstream down"}`, services.ErrTransient, services.CodeTransient},
		{"rate limited", http.StatusTooManyRequests, ``, services.ErrTransient, services.CodeTransient},
		{"tool failure", http.StatusUnprocessableEntity, `{"error":"bad frame"}`, services.ErrToolExecution, services.CodeToolFailure},
		{"reported encoding", http.StatusUnprocessableEntity, `{"message":"ffmpeg exited 1","code":"encoding_failure"}`, services.ErrEncoding, services.CodeEncodingFailure},
		{"reported missing file", http.StatusBadRequest, `{"error":"no such clip","code":"missing_file"}`, services.ErrNotFound, services.CodeMissingFile},
		{"unknown tool", http.StatusNotFound, `not found`, services.ErrConfiguration, services.CodeConfiguration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			exec := NewHTTPExecutor(toolsConfig(server.URL), nil)
			_, err := exec.Execute(context.Background(), adapter.ToolRenderFinal, adapter.StepArgs{JobID: "j"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.marker)
			assert.Equal(t, tc.code, services.Details(err).Code)
		})
	}
}

func TestHTTPExecutorOpensBreakerOnTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	exec := NewHTTPExecutor(toolsConfig(server.URL), nil)
	for i := 0; i < 2; i++ {
		_, err := exec.Execute(context.Background(), adapter.ToolSemanticSearch, adapter.StepArgs{})
		require.ErrorIs(t, err, services.ErrTransient)
	}
	assert.Equal(t, gobreaker.StateOpen, exec.State(adapter.ToolSemanticSearch))

	_, err := exec.Execute(context.Background(), adapter.ToolSemanticSearch, adapter.StepArgs{})
	require.ErrorIs(t, err, services.ErrTransient)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, int32(2), calls.Load(), "open circuit must not reach the server")

	assert.Equal(t, gobreaker.StateClosed, exec.State(adapter.ToolExtractHighlights), "breakers are per tool")
}

func TestHTTPExecutorToolErrorsDoNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	exec := NewHTTPExecutor(toolsConfig(server.URL), nil)
	for i := 0; i < 4; i++ {
		_, err := exec.Execute(context.Background(), adapter.ToolSemanticSearch, adapter.StepArgs{})
		require.ErrorIs(t, err, services.ErrToolExecution)
	}
	assert.Equal(t, gobreaker.StateClosed, exec.State(adapter.ToolSemanticSearch))
}

func TestHTTPExecutorTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	exec := NewHTTPExecutor(toolsConfig(server.URL), nil, WithHTTPClient(&http.Client{}))
	exec.timeout = 50 * time.Millisecond
	_, err := exec.Execute(context.Background(), adapter.ToolSemanticSearch, adapter.StepArgs{})
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrTimeout)
	assert.True(t, services.IsRetryable(err))
}

func TestHTTPExecutorRequiresBaseURL(t *testing.T) {
	exec := NewHTTPExecutor(config.Tools{}, nil)
	_, err := exec.Execute(context.Background(), adapter.ToolSemanticSearch, adapter.StepArgs{})
	require.ErrorIs(t, err, services.ErrConfiguration)
}

func TestNewSelectsExecutor(t *testing.T) {
	cfg := config.Default()
	exec, err := New(&cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTPExecutor{}, exec)

	cfg.Tools.Executor = "carrier-pigeon"
	_, err = New(&cfg, nil)
	require.ErrorIs(t, err, services.ErrConfiguration)
}
