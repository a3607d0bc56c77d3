package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pressing/internal/config"
)

const userAgent = "pressing/0.1.0"

// BuildResult is the outcome of one build as shown in a notification.
type BuildResult struct {
	Album     string
	OutputDir string
	Success   bool
	Cancelled bool
	Succeeded int
	Failed    int
	Duration  time.Duration
	// Failures lists root causes as "phase: unit: message".
	Failures []string
}

// Service defines the notification surface used by the application layer.
type Service interface {
	NotifyBuildCompleted(ctx context.Context, result BuildResult) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
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
		onSuccess: cfg.Notifications.OnSuccess,
		onFailure: cfg.Notifications.OnFailure,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	onSuccess bool
	onFailure bool
}

// maxListedFailures bounds the failure lines included in one message.
const maxListedFailures = 5

func (n *ntfyService) NotifyBuildCompleted(ctx context.Context, result BuildResult) error {
	album := strings.TrimSpace(result.Album)
	if album == "" {
		album = "album"
	}
	duration := result.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var data payload
	switch {
	case result.Cancelled:
		if !n.onFailure {
			return nil
		}
		data = payload{
			title:   "Pressing - Build Cancelled",
			message: fmt.Sprintf("Build of %s cancelled after %s", album, duration),
			tags:    []string{"pressing", "build", "cancelled"},
		}
	case result.Success:
		if !n.onSuccess {
			return nil
		}
		data = payload{
			title:   "Pressing - Build Complete",
			message: fmt.Sprintf("%s built in %s (%d units)", album, duration, result.Succeeded),
			tags:    []string{"pressing", "build", "completed"},
		}
	default:
		if !n.onFailure {
			return nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s failed: %d of %d units failed in %s", album, result.Failed, result.Failed+result.Succeeded, duration)
		for i, line := range result.Failures {
			if i == maxListedFailures {
				fmt.Fprintf(&b, "\n... and %d more", len(result.Failures)-i)
				break
			}
			b.WriteString("\n")
			b.WriteString(line)
		}
		data = payload{
			title:    "Pressing - Build Failed",
			message:  b.String(),
			tags:     []string{"pressing", "build", "failed"},
			priority: "high",
		}
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.onFailure {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Pressing - Error",
		message:  builder.String(),
		tags:     []string{"pressing", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Pressing - Test",
		message:  "Notification system test",
		tags:     []string{"pressing", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
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

func (noopService) NotifyBuildCompleted(context.Context, BuildResult) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error        { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }
