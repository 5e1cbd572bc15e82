package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"reelforge/internal/api"
	"reelforge/internal/config"
	"reelforge/internal/jobstore"
	"reelforge/internal/logging"
	"reelforge/internal/services"
)

const (
	defaultHistoryLimit = 50
	maxRequestBytes     = 1 << 20

	codeInvalidRequest = "invalid_request"
)

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	limiter *rate.Limiter
	grace   time.Duration
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		grace:  cfg.StreamGrace(),
	}
	if cfg.API.RequestsPerMinute > 0 {
		burst := cfg.API.Burst
		if burst <= 0 {
			burst = 1
		}
		srv.limiter = rate.NewLimiter(rate.Limit(float64(cfg.API.RequestsPerMinute)/60), burst)
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/jobs", authMiddleware(token, srv.rateLimited(srv.handleCreateJob)))
	mux.HandleFunc("GET /api/jobs", authMiddleware(token, srv.handleListJobs))
	mux.HandleFunc("GET /api/jobs/{id}", authMiddleware(token, srv.handleJob))
	mux.HandleFunc("DELETE /api/jobs/{id}", authMiddleware(token, srv.handleRemoveJob))
	mux.HandleFunc("GET /api/jobs/{id}/stream", authMiddleware(token, srv.handleStream))
	mux.HandleFunc("GET /api/health", srv.handleHealth)
	srv.handler = requestIDMiddleware(mux)
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api listen: paths.api_bind is not set")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check paths.api_bind"),
			)
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many job submissions", "rate_limited")
			return
		}
		next(w, r)
	}
}

func (s *apiServer) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req api.CreateJobRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), codeInvalidRequest)
		return
	}
	job, err := s.daemon.coord.CreateJob(r.Context(), req.VideoID, req.Prompt)
	if err != nil {
		details := services.Details(err)
		status, code := http.StatusInternalServerError, details.Code
		switch details.Kind {
		case services.KindValidation:
			status, code = http.StatusBadRequest, codeInvalidRequest
		case services.KindTransient:
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, details.Message, code)
		return
	}
	logging.WithContext(r.Context(), s.logger).Info("job accepted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("video_id", job.VideoID),
	)
	writeJSON(w, http.StatusAccepted, api.CreateJobResponse{JobID: job.ID})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	status, ok, err := s.lookup(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found", "")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleRemoveJob deletes a finished job from history. Active jobs are
// refused with 409.
func (s *apiServer) handleRemoveJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.PathValue("id"))
	if _, active := s.daemon.coord.Status(jobID); active {
		writeError(w, http.StatusConflict, "job is still running", "job_active")
		return
	}
	removed, err := s.daemon.store.Remove(r.Context(), jobID)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(r.Context(), s.logger), "job removal failed", "job_remove_failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the job store database"),
		)
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "job not found", "")
		return
	}
	logging.WithContext(r.Context(), s.logger).Info("job removed from history",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldEventType, "job_removed"),
	)
	w.WriteHeader(http.StatusNoContent)
}

// lookup prefers the live run and falls back to the last persisted snapshot.
func (s *apiServer) lookup(ctx context.Context, jobID string) (api.JobStatus, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return api.JobStatus{}, false, nil
	}
	if view, ok := s.daemon.coord.Snapshot(jobID); ok {
		return api.FromJobView(view), true, nil
	}
	snap, err := s.daemon.store.Get(ctx, jobID)
	if err != nil {
		return api.JobStatus{}, false, err
	}
	if snap == nil {
		return api.JobStatus{}, false, nil
	}
	return api.FromSnapshot(*snap), true, nil
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	opts := jobstore.ListOptions{Limit: defaultHistoryLimit}
	for _, value := range query["status"] {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			opts.Statuses = append(opts.Statuses, trimmed)
		}
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", "")
			return
		}
		opts.Limit = limit
	}
	snaps, err := s.daemon.store.List(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	jobs := api.FromSnapshots(snaps)
	for i := range jobs {
		if view, ok := s.daemon.coord.Snapshot(jobs[i].JobID); ok {
			jobs[i] = api.FromJobView(view)
		}
	}
	writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: jobs})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := s.daemon.Checks()
	if r.URL.Query().Get("refresh") == "1" {
		checks = s.daemon.refreshChecks(r.Context())
	}
	resp := api.HealthResponse{
		Status:     api.HealthOK,
		ActiveJobs: s.daemon.coord.Active(),
		Checks:     api.FromPreflight(checks),
	}
	for _, check := range checks {
		if !check.Passed {
			resp.Status = api.HealthDegraded
			break
		}
	}
	if counts, err := s.daemon.store.Stats(r.Context()); err == nil {
		resp.JobCounts = counts
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, api.ErrorResponse{Error: message, Code: code})
}
