package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelforge/internal/config"
)

const userAgent = "reelforge/0.1.0"

// Event names a notification type.
type Event string

const (
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventTest         Event = "test"
)

// Payload carries event details keyed by field name.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		errors:    cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	errors    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventJobCompleted:
		if !n.completed {
			return message{}, false
		}
		body := fmt.Sprintf("Reel ready: %s", payload.str("prompt"))
		if url := payload.str("deliverableUrl"); url != "" {
			body += "\n" + url
		}
		return message{
			title:    "reelforge - Reel Ready",
			body:     body,
			tags:     []string{"reelforge", "job", "completed"},
			priority: "high",
		}, true
	case EventJobFailed:
		if !n.errors {
			return message{}, false
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Job %s failed", payload.str("jobId"))
		if step := payload.str("tool"); step != "" {
			fmt.Fprintf(&b, " at %s", step)
		}
		if code := payload.str("code"); code != "" {
			fmt.Fprintf(&b, " (%s)", code)
		}
		if errVal, ok := payload["error"].(error); ok && errVal != nil {
			fmt.Fprintf(&b, "\n%s", errVal.Error())
		} else if text := payload.str("error"); text != "" {
			fmt.Fprintf(&b, "\n%s", text)
		}
		return message{
			title:    "reelforge - Job Failed",
			body:     b.String(),
			tags:     []string{"reelforge", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "reelforge - Test",
			body:     "Notification system test",
			tags:     []string{"reelforge", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
