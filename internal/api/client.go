package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client talks to a running reelforge daemon over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	dialer  *websocket.Dialer
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: http %d: %s (%s)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("api: http %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// NewClient builds a client for the daemon listening on bind (host:port or a
// full URL). token is sent as a bearer token when non-empty.
func NewClient(bind, token string) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 30 * time.Second},
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// CreateJob submits a new job and returns its id.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (string, error) {
	var resp CreateJobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// Job fetches the status of one job.
func (c *Client) Job(ctx context.Context, jobID string) (JobStatus, error) {
	var resp JobStatus
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, &resp)
	return resp, err
}

// Jobs lists job history, newest first.
func (c *Client) Jobs(ctx context.Context, statuses []string, limit int) ([]JobStatus, error) {
	query := url.Values{}
	for _, status := range statuses {
		query.Add("status", status)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/jobs"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp JobListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// RemoveJob deletes a finished job from the daemon's history.
func (c *Client) RemoveJob(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(jobID), nil, nil)
}

// Health fetches daemon health and preflight results. With refresh set the
// daemon re-runs its checks first.
func (c *Client) Health(ctx context.Context, refresh bool) (HealthResponse, error) {
	path := "/api/health"
	if refresh {
		path += "?refresh=1"
	}
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

// Stream follows a job's progress stream and calls handle for every
// envelope until the daemon closes the stream, ctx ends or handle returns
// false.
func (c *Client) Stream(ctx context.Context, jobID string, handle func(StreamEnvelope) bool) error {
	endpoint, err := url.Parse(c.baseURL + "/api/jobs/" + url.PathEscape(jobID) + "/stream")
	if err != nil {
		return fmt.Errorf("api: stream url: %w", err)
	}
	switch endpoint.Scheme {
	case "https":
		endpoint.Scheme = "wss"
	default:
		endpoint.Scheme = "ws"
	}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, endpoint.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return decodeError(resp)
		}
		return fmt.Errorf("api: dial stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var envelope StreamEnvelope
		if err := conn.ReadJSON(&envelope); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("api: read stream: %w", err)
		}
		if !handle(envelope) {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			return nil
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	statusErr := &StatusError{StatusCode: resp.StatusCode}
	var payload ErrorResponse
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		statusErr.Message = payload.Error
		statusErr.Code = payload.Code
	} else {
		statusErr.Message = strings.TrimSpace(string(data))
	}
	if statusErr.Message == "" {
		statusErr.Message = http.StatusText(resp.StatusCode)
	}
	return statusErr
}
