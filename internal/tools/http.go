package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"reelforge/internal/adapter"
	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/services"
)

const (
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 60 * time.Second
	maxResponseBytes       = 32 << 20
)

// HTTPExecutor posts step arguments to a tool server.
type HTTPExecutor struct {
	baseURL     string
	client      *http.Client
	timeout     time.Duration
	maxFailures uint32
	openFor     time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[json.RawMessage]
}

// HTTPOption customizes an HTTPExecutor.
type HTTPOption func(*HTTPExecutor)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(e *HTTPExecutor) {
		if client != nil {
			e.client = client
		}
	}
}

// NewHTTPExecutor builds an executor from the [tools] config section.
func NewHTTPExecutor(cfg config.Tools, logger *slog.Logger, opts ...HTTPOption) *HTTPExecutor {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &HTTPExecutor{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		client:      &http.Client{},
		timeout:     time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		maxFailures: defaultBreakerFailures,
		openFor:     defaultBreakerTimeout,
		logger:      logging.NewComponentLogger(logger, "tools-http"),
		breakers:    make(map[string]*gobreaker.CircuitBreaker[json.RawMessage]),
	}
	if cfg.BreakerMaxFailures > 0 {
		e.maxFailures = uint32(cfg.BreakerMaxFailures)
	}
	if cfg.BreakerTimeoutSeconds > 0 {
		e.openFor = time.Duration(cfg.BreakerTimeoutSeconds) * time.Second
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute implements Executor.
func (e *HTTPExecutor) Execute(ctx context.Context, toolName string, args adapter.StepArgs) (json.RawMessage, error) {
	breaker := e.breaker(toolName)
	raw, err := breaker.Execute(func() (json.RawMessage, error) {
		return e.call(ctx, toolName, args)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		wrapped := services.Wrap(services.ErrTransient, toolName, "http", "circuit open", err)
		return nil, services.WithHint(wrapped, "the tool server failed repeatedly; retry once it recovers")
	}
	return raw, err
}

// State reports the breaker state of toolName.
func (e *HTTPExecutor) State(toolName string) gobreaker.State {
	return e.breaker(toolName).State()
}

func (e *HTTPExecutor) breaker(toolName string) *gobreaker.CircuitBreaker[json.RawMessage] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[toolName]; ok {
		return cb
	}
	maxFailures := e.maxFailures
	logger := e.logger
	cb := gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        "tool:" + toolName,
		MaxRequests: 1,
		Timeout:     e.openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.WarnWithContext(logger, "tool circuit breaker state change", "breaker_state_change",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()),
				logging.String(logging.FieldErrorHint, "check the tool server"),
				logging.String(logging.FieldImpact, "calls fail fast while the circuit is open"),
			)
		},
		// Only transport-level failures count against the tool server.
		IsSuccessful: func(err error) bool {
			return err == nil || !services.IsRetryable(err)
		},
	})
	e.breakers[toolName] = cb
	return cb
}

func (e *HTTPExecutor) call(ctx context.Context, toolName string, args adapter.StepArgs) (json.RawMessage, error) {
	if e.baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, toolName, "http", "tools.base_url is not set", nil)
	}
	endpoint, err := url.JoinPath(e.baseURL, toolName)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, toolName, "http", "build url", err)
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, toolName, "http", "encode arguments", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, toolName, "http", "new request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Job-ID", args.JobID)
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-ID", rid)
	}

	started := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, toolName, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, toolName, "http", "read response", err)
	}
	logging.WithContext(ctx, e.logger).Debug(
		"tool responded",
		logging.Int("status", resp.StatusCode),
		logging.Int("bytes", len(payload)),
		logging.Duration("elapsed", time.Since(started)),
	)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return json.RawMessage(payload), nil
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return nil, classifyReported(toolName, "http", payload, services.ErrTransient, fmt.Errorf("http %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		err := classifyReported(toolName, "http", payload, services.ErrConfiguration, fmt.Errorf("http %d", resp.StatusCode))
		return nil, services.WithHint(err, "tool is not registered on the tool server")
	default:
		return nil, classifyReported(toolName, "http", payload, services.ErrToolExecution, fmt.Errorf("http %d", resp.StatusCode))
	}
}

func classifyTransport(ctx context.Context, toolName string, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return services.Wrap(services.ErrTransient, toolName, "http", "request cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, toolName, "http", "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return services.Wrap(services.ErrTransient, toolName, "http", "network error", err)
	}
	return services.Wrap(services.ErrTransient, toolName, "http", "request failed", err)
}
