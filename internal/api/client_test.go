package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge/internal/progress"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewClientAddsScheme(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:7490", NewClient("127.0.0.1:7490/", "").baseURL)
	assert.Equal(t, "https://reels.example.com", NewClient("https://reels.example.com", "").baseURL)
}

func TestCreateJobSendsTokenAndBody(t *testing.T) {
	var got CreateJobRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "/api/jobs", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(CreateJobResponse{JobID: "j-1"})
	}))
	defer srv.Close()

	id, err := NewClient(srv.URL, "tok").CreateJob(testContext(t), CreateJobRequest{VideoID: "v", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "j-1", id)
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, CreateJobRequest{VideoID: "v", Prompt: "p"}, got)
}

func TestErrorResponsesDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/jobs/missing":
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "job not found"})
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()
	client := NewClient(srv.URL, "")

	_, err := client.Job(testContext(t), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	_, err = client.Health(testContext(t), false)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "boom", statusErr.Message)
	assert.False(t, IsNotFound(err))
}

func TestJobsEncodesQuery(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(JobListResponse{Jobs: []JobStatus{{JobID: "a"}}})
	}))
	defer srv.Close()

	jobs, err := NewClient(srv.URL, "").Jobs(testContext(t), []string{"failed", "completed"}, 5)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Contains(t, query, "status=failed")
	assert.Contains(t, query, "status=completed")
	assert.Contains(t, query, "limit=5")
}

func TestStreamDeliversEnvelopesUntilClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/api/jobs/j1/stream"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(StreamEnvelope{Channel: progress.ChannelWorkflow, Workflow: &progress.WorkflowEvent{JobID: "j1", Kind: progress.KindInitial}})
		_ = conn.WriteJSON(StreamEnvelope{Channel: progress.ChannelScalar, Scalar: &progress.ScalarProgress{JobID: "j1", Status: progress.StatusCompleted, Percent: 100}})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	var got []StreamEnvelope
	err := NewClient(srv.URL, "").Stream(testContext(t), "j1", func(env StreamEnvelope) bool {
		got = append(got, env)
		return true
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, progress.KindInitial, got[0].Workflow.Kind)
	assert.True(t, got[1].Terminal())
}

func TestStreamHandshakeErrorIsDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "unauthorized"})
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").Stream(testContext(t), "j1", func(StreamEnvelope) bool { return true })
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}
