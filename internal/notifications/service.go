package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"captioner/internal/config"
	"captioner/internal/jobs"
)

const userAgent = "captioner/1.0"

// Service publishes job outcomes to ntfy.
type Service struct {
	endpoint  string
	client    *http.Client
	onSuccess bool
	onFailure bool
}

// NewService builds an ntfy-backed service. It returns nil when no topic is
// configured; a nil *Service is safe to use and sends nothing.
func NewService(cfg *config.Config) *Service {
	if cfg == nil {
		return nil
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return nil
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		onSuccess: cfg.Notifications.NotifySuccess,
		onFailure: cfg.Notifications.NotifyFailure,
	}
}

// Enabled reports whether the service will send anything.
func (s *Service) Enabled() bool {
	return s != nil && s.client != nil
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

// JobFinished publishes a terminal job view. Non-terminal views and outcomes
// disabled in config are ignored.
func (s *Service) JobFinished(ctx context.Context, view jobs.View) error {
	if !s.Enabled() {
		return nil
	}
	switch view.State {
	case jobs.StateSuccess:
		if !s.onSuccess {
			return nil
		}
		return s.send(ctx, successPayload(view))
	case jobs.StateFailure:
		if !s.onFailure {
			return nil
		}
		return s.send(ctx, failurePayload(view))
	default:
		return nil
	}
}

// TestNotification sends a low-priority probe message.
func (s *Service) TestNotification(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.send(ctx, payload{
		title:    "Captioner - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"captioner", "test"},
		priority: "low",
	})
}

func successPayload(view jobs.View) payload {
	data := payload{tags: []string{"captioner", string(view.Kind), "completed"}}
	var detail string
	if r := view.Result; r != nil {
		lang := r.Language
		if lang == "" {
			lang = "unknown language"
		}
		detail = fmt.Sprintf(" (%s, %d segments)", lang, len(r.Segments))
	}
	switch view.Kind {
	case jobs.KindTranslation:
		data.title = "Captioner - Translated"
		data.message = fmt.Sprintf("🌐 Translation ready: %s%s", view.ID, detail)
	default:
		data.title = "Captioner - Transcribed"
		data.message = fmt.Sprintf("✅ Subtitles ready: %s%s", view.ID, detail)
	}
	return data
}

func failurePayload(view jobs.View) payload {
	reason := strings.TrimSpace(view.Error)
	if reason == "" {
		reason = "unknown"
	}
	kind := string(view.Kind)
	if kind == "" {
		kind = "job"
	}
	return payload{
		title:    "Captioner - Error",
		message:  fmt.Sprintf("❌ %s %s failed: %s", kind, view.ID, reason),
		tags:     []string{"captioner", "error", "alert"},
		priority: "high",
	}
}

func (s *Service) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(data.message))
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

	resp, err := s.client.Do(req)
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
