package daemon_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge/internal/adapter"
	"reelforge/internal/api"
	"reelforge/internal/config"
	"reelforge/internal/jobstore"
	"reelforge/internal/preflight"
	"reelforge/internal/progress"
	"reelforge/internal/testsupport"
)

func TestCreateJobStreamsUntilCompletion(t *testing.T) {
	f := newFixture(t, nil)
	f.scriptReel(t)

	// Hold the first step until the stream is attached.
	release := make(chan struct{})
	clip := f.mediaClip(t)
	f.exec.On(adapter.ToolSemanticSearch, func(ctx context.Context, args adapter.StepArgs) (json.RawMessage, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return json.RawMessage(`{"results":[{"filePath":"` + clip + `","startTime":0,"endTime":5,"score":0.9}]}`), nil
	})

	ctx := testContext(t)
	jobID, err := f.client.CreateJob(ctx, api.CreateJobRequest{VideoID: "match-42", Prompt: "every goal"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)

	status, err := f.client.Job(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.False(t, status.Terminal())

	var (
		once      sync.Once
		envelopes []api.StreamEnvelope
	)
	err = f.client.Stream(ctx, jobID, func(env api.StreamEnvelope) bool {
		once.Do(func() { close(release) })
		envelopes = append(envelopes, env)
		return true
	})
	require.NoError(t, err)
	require.NotEmpty(t, envelopes)

	var (
		workflowKinds []progress.Kind
		lastScalar    *progress.ScalarProgress
	)
	for _, env := range envelopes {
		switch env.Channel {
		case progress.ChannelWorkflow:
			require.NotNil(t, env.Workflow)
			workflowKinds = append(workflowKinds, env.Workflow.Kind)
		case progress.ChannelScalar:
			require.NotNil(t, env.Scalar)
			lastScalar = env.Scalar
		}
	}
	require.NotEmpty(t, workflowKinds)
	assert.Equal(t, progress.KindWorkflowComplete, workflowKinds[len(workflowKinds)-1])
	require.NotNil(t, lastScalar)
	assert.Equal(t, progress.StatusCompleted, lastScalar.Status)
	assert.Equal(t, 100, lastScalar.Percent)

	f.coord.Wait()
	final, err := f.client.Job(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusCompleted, final.Status)
	assert.Equal(t, deliverable, final.DeliverableURL)
	assert.False(t, final.Active)
	require.Len(t, final.Steps, 5)
}

func (f *fixture) mediaClip(t *testing.T) string {
	t.Helper()
	return testsupport.WriteMediaFiles(t, t.TempDir(), "gated.mp4")[0]
}

func TestJobStatusUnknownReturnsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.client.Job(testContext(t), "missing")
	require.Error(t, err)
	assert.True(t, api.IsNotFound(err))
}

func TestCreateJobValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := testContext(t)

	_, err := f.client.CreateJob(ctx, api.CreateJobRequest{VideoID: "vid"})
	var statusErr *api.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, "invalid_request", statusErr.Code)
	assert.Contains(t, statusErr.Message, "prompt")

	resp, err := http.Post(f.server.URL+"/api/jobs", "application/json", http.NoBody)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBearerTokenRequired(t *testing.T) {
	f := newFixture(t, nil, testsupport.WithAPIToken("s3cret"))
	ctx := testContext(t)

	anonymous := api.NewClient(f.server.URL, "")
	_, err := anonymous.Jobs(ctx, nil, 0)
	var statusErr *api.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)

	wrong := api.NewClient(f.server.URL, "guess")
	_, err = wrong.Jobs(ctx, nil, 0)
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)

	_, err = f.client.Jobs(ctx, nil, 0)
	require.NoError(t, err)

	_, err = anonymous.Health(ctx, false)
	require.NoError(t, err, "health stays public")
}

func TestJobCreationIsRateLimited(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.RequestsPerMinute = 1
	cfg.API.Burst = 1
	f := newFixtureWithConfig(t, cfg, nil)
	ctx := testContext(t)

	_, err := f.client.CreateJob(ctx, api.CreateJobRequest{VideoID: "v", Prompt: "p"})
	require.NoError(t, err)

	_, err = f.client.CreateJob(ctx, api.CreateJobRequest{VideoID: "v", Prompt: "p"})
	var statusErr *api.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, "rate_limited", statusErr.Code)
}

func TestHistoryListsPersistedJobs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := testContext(t)
	now := time.Now().UTC()
	for _, snap := range []jobstore.Snapshot{
		{JobID: "old-ok", VideoID: "v1", Prompt: "p", Status: jobstore.StatusCompleted, Percent: 100, DeliverableURL: "https://cdn/1.mp4", CreatedAt: now, UpdatedAt: now.Add(-time.Minute)},
		{JobID: "old-bad", VideoID: "v2", Prompt: "p", Status: jobstore.StatusFailed, ErrorCode: "transient", CreatedAt: now, UpdatedAt: now},
	} {
		require.NoError(t, f.store.Save(ctx, snap))
	}

	jobs, err := f.client.Jobs(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "old-bad", jobs[0].JobID)
	assert.Equal(t, "transient", jobs[0].ErrorCode)

	failed, err := f.client.Jobs(ctx, []string{jobstore.StatusFailed}, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "old-bad", failed[0].JobID)

	resp, err := http.Get(f.server.URL + "/api/jobs?limit=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthReportsPreflight(t *testing.T) {
	checks := func(context.Context, *config.Config) []preflight.Result {
		return []preflight.Result{
			{Name: "State directory", Passed: true},
			{Name: "Tool server", Passed: false, Detail: "connection refused"},
		}
	}
	f := newFixture(t, checks)
	ctx := testContext(t)

	health, err := f.client.Health(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, api.HealthOK, health.Status, "checks run at start or on refresh")

	refreshed, err := f.client.Health(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, api.HealthDegraded, refreshed.Status)
	require.Len(t, refreshed.Checks, 2)
	assert.Equal(t, "connection refused", refreshed.Checks[1].Detail)
}

func TestStreamOfFinishedJobReplaysSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := testContext(t)
	now := time.Now().UTC()
	require.NoError(t, f.store.Save(ctx, jobstore.Snapshot{
		JobID: "done", VideoID: "v", Prompt: "p", Status: jobstore.StatusCompleted, Percent: 100,
		Message: "Reel ready", CreatedAt: now, UpdatedAt: now,
	}))

	var envelopes []api.StreamEnvelope
	err := f.client.Stream(ctx, "done", func(env api.StreamEnvelope) bool {
		envelopes = append(envelopes, env)
		return true
	})
	require.NoError(t, err)
	require.Len(t, envelopes, 1)
	require.NotNil(t, envelopes[0].Scalar)
	assert.Equal(t, progress.StatusCompleted, envelopes[0].Scalar.Status)

	err = f.client.Stream(ctx, "never-existed", func(api.StreamEnvelope) bool { return true })
	assert.True(t, api.IsNotFound(err))
}

func TestRemoveJob(t *testing.T) {
	f := newFixture(t, nil)
	ctx := testContext(t)
	now := time.Now().UTC()
	require.NoError(t, f.store.Save(ctx, jobstore.Snapshot{
		JobID: "old", VideoID: "v", Prompt: "p", Status: jobstore.StatusFailed, CreatedAt: now, UpdatedAt: now,
	}))

	require.NoError(t, f.client.RemoveJob(ctx, "old"))
	_, err := f.client.Job(ctx, "old")
	assert.True(t, api.IsNotFound(err))
	assert.True(t, api.IsNotFound(f.client.RemoveJob(ctx, "old")))

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	f.exec.On(adapter.ToolSemanticSearch, func(ctx context.Context, args adapter.StepArgs) (json.RawMessage, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, errors.New("stopped")
	})
	jobID, err := f.client.CreateJob(ctx, api.CreateJobRequest{VideoID: "v", Prompt: "p"})
	require.NoError(t, err)

	err = f.client.RemoveJob(ctx, jobID)
	var statusErr *api.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusConflict, statusErr.StatusCode)
	assert.Equal(t, "job_active", statusErr.Code)
}
