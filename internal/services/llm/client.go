package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	defaultEndpoint    = "https://openrouter.ai/api/v1/chat/completions"
	defaultHTTPTimeout = 15 * time.Second
	defaultMaxTokens   = 160
	maxSummaryRunes    = 480
	maxResponseBytes   = 1 << 20
)

// ErrUnavailable is returned while repeated failures keep reflections paused.
var ErrUnavailable = errors.New("llm: reflections paused after repeated failures")

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// Request is one reflection call. Facts is encoded as JSON and sent as the
// user message; Instructions becomes the system message.
type Request struct {
	Instructions string
	Facts        any
	// MaxTokens bounds the reply. Zero uses a two-sentence budget.
	MaxTokens int
}

// Reflection is the narration the model returned for one step.
type Reflection struct {
	Summary      string
	Model        string
	FinishReason string
}

// Client posts step facts to an OpenRouter-compatible chat completion
// endpoint and reads back a {"summary": "..."} narration.
type Client struct {
	cfg   Config
	http  *http.Client
	retry retryPolicy
	sleep func(time.Duration)

	tripAfter uint32
	cooldown  time.Duration
	breaker   *gobreaker.CircuitBreaker[Reflection]
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetry sets how many attempts a reflection gets and the backoff between
// them. A Retry-After header from the endpoint wins over the computed delay.
func WithRetry(attempts int, base, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retry = retryPolicy{attempts: attempts, base: base, max: maxDelay}
	}
}

// WithSleeper replaces the backoff sleep.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleep = sleeper
	}
}

// WithBreaker pauses reflections for cooldown after failures consecutive
// failed calls.
func WithBreaker(failures int, cooldown time.Duration) Option {
	return func(c *Client) {
		if failures > 0 {
			c.tripAfter = uint32(failures)
		}
		if cooldown > 0 {
			c.cooldown = cooldown
		}
	}
}

// NewClient constructs an LLM client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			Referer:        strings.TrimSpace(cfg.Referer),
			Title:          strings.TrimSpace(cfg.Title),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		http:      &http.Client{Timeout: timeout},
		retry:     retryPolicy{attempts: 3, base: 500 * time.Millisecond, max: 4 * time.Second},
		tripAfter: 3,
		cooldown:  2 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.BaseURL == "" {
		c.cfg.BaseURL = defaultEndpoint
	}
	tripAfter := c.tripAfter
	c.breaker = gobreaker.NewCircuitBreaker[Reflection](gobreaker.Settings{
		Name:        "llm:" + c.cfg.Model,
		MaxRequests: 1,
		Timeout:     c.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		// A cancelled run says nothing about the model.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return c
}

// Reflect asks the model to narrate one finished step.
func (c *Client) Reflect(ctx context.Context, req Request) (Reflection, error) {
	if c.cfg.APIKey == "" {
		return Reflection{}, errors.New("llm reflect: api key required")
	}
	instructions := strings.TrimSpace(req.Instructions)
	if instructions == "" {
		return Reflection{}, errors.New("llm reflect: instructions required")
	}
	if req.Facts == nil {
		return Reflection{}, errors.New("llm reflect: facts required")
	}
	facts, err := json.MarshalIndent(req.Facts, "", "  ")
	if err != nil {
		return Reflection{}, fmt.Errorf("llm reflect: encode facts: %w", err)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: instructions},
			{Role: "user", Content: string(facts)},
		},
		Temperature:    0.2,
		MaxTokens:      maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	out, err := c.breaker.Execute(func() (Reflection, error) {
		return c.complete(ctx, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Reflection{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return out, err
}

// Ping verifies the key and model with a minimal completion. It skips the
// breaker and retries so readiness checks see the endpoint's own answer.
func (c *Client) Ping(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return errors.New("llm ping: api key required")
	}
	resp, raw, err := c.post(ctx, chatRequest{
		Model:     c.cfg.Model,
		Messages:  []chatMessage{{Role: "user", Content: "Reply with the single word ok."}},
		MaxTokens: 5,
	})
	if err != nil {
		return fmt.Errorf("llm ping: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("llm ping: no choices in %s", snippet(string(raw)))
	}
	return nil
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// statusError is a non-2xx answer from the endpoint.
type statusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, snippet(e.body))
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusRequestTimeout || e.code == http.StatusTooManyRequests || e.code >= http.StatusInternalServerError
}

// emptyError is a completion that carried no text.
type emptyError struct {
	finishReason string
	body         string
}

func (e *emptyError) Error() string {
	return fmt.Sprintf("empty content (finish_reason=%q, response=%s)", e.finishReason, snippet(e.body))
}

func (c *Client) complete(ctx context.Context, body chatRequest) (Reflection, error) {
	var (
		attempt int
		err     error
	)
	for attempt = 1; ; attempt++ {
		var (
			resp chatResponse
			raw  []byte
			out  Reflection
		)
		resp, raw, err = c.post(ctx, body)
		if err == nil {
			out, err = readReflection(resp, raw)
			if err == nil {
				return out, nil
			}
		}
		wait, retry := c.retry.next(ctx, err, attempt)
		if !retry {
			break
		}
		if err := c.pause(ctx, wait); err != nil {
			return Reflection{}, err
		}
	}
	if attempt > 1 {
		return Reflection{}, fmt.Errorf("llm reflect: gave up after %d attempts: %w", attempt, err)
	}
	return Reflection{}, fmt.Errorf("llm reflect: %w", err)
}

func (c *Client) post(ctx context.Context, body chatRequest) (chatResponse, []byte, error) {
	var resp chatResponse
	encoded, err := json.Marshal(body)
	if err != nil {
		return resp, nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return resp, nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return resp, nil, err
	}
	defer httpResp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return resp, nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode >= http.StatusMultipleChoices {
		return resp, raw, &statusError{
			code:       httpResp.StatusCode,
			body:       string(raw),
			retryAfter: retryAfter(httpResp.Header.Get("Retry-After")),
		}
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp, raw, fmt.Errorf("decode response: %w (response=%s)", err, snippet(string(raw)))
	}
	if resp.Error != nil {
		return resp, raw, fmt.Errorf("api error: %s", strings.TrimSpace(resp.Error.Message))
	}
	return resp, raw, nil
}

func readReflection(resp chatResponse, raw []byte) (Reflection, error) {
	if len(resp.Choices) == 0 {
		return Reflection{}, &emptyError{body: string(raw)}
	}
	choice := resp.Choices[0]
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
			return Reflection{}, fmt.Errorf("model refused: %s", refusal)
		}
		return Reflection{}, &emptyError{finishReason: choice.FinishReason, body: string(raw)}
	}
	summary, err := decodeSummary(content)
	if err != nil {
		return Reflection{}, err
	}
	return Reflection{Summary: summary, Model: resp.Model, FinishReason: choice.FinishReason}, nil
}

// decodeSummary reads {"summary": "..."} from content. An object wrapped in a
// code fence or prose is found by its outer braces; a reply with no object at
// all is taken as the summary itself.
func decodeSummary(content string) (string, error) {
	summary := content
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start >= 0 && end > start {
		var payload struct {
			Summary string `json:"summary"`
		}
		if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
			return "", fmt.Errorf("parse summary: %w (content=%s)", err, snippet(content))
		}
		summary = payload.Summary
	}
	summary = strings.Join(strings.Fields(summary), " ")
	if summary == "" {
		return "", errors.New("empty summary")
	}
	if runes := []rune(summary); len(runes) > maxSummaryRunes {
		summary = string(runes[:maxSummaryRunes-3]) + "..."
	}
	return summary, nil
}

type retryPolicy struct {
	attempts int
	base     time.Duration
	max      time.Duration
}

// next reports whether attempt may be followed by another one and how long to
// wait first.
func (p retryPolicy) next(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if attempt >= p.attempts || ctx.Err() != nil {
		return 0, false
	}
	var (
		status *statusError
		empty  *emptyError
		netErr net.Error
	)
	switch {
	case errors.As(err, &status):
		if !status.retryable() {
			return 0, false
		}
		return p.backoff(attempt, status.retryAfter), true
	case errors.As(err, &empty):
		return p.backoff(attempt, 0), true
	case errors.As(err, &netErr) && netErr.Timeout():
		return p.backoff(attempt, 0), true
	default:
		return 0, false
	}
}

func (p retryPolicy) backoff(attempt int, hint time.Duration) time.Duration {
	delay := hint
	if delay <= 0 {
		delay = p.base
		for i := 1; i < attempt && delay > 0 && (p.max <= 0 || delay < p.max); i++ {
			delay *= 2
		}
	}
	if p.max > 0 && delay > p.max {
		delay = p.max
	}
	return delay
}

func (c *Client) pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if c.sleep != nil {
		c.sleep(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay
		}
	}
	return 0
}

func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}
