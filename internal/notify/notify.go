// Package notify is the push-notification boundary. Delivery is
// fire-and-forget: transitions enqueue a task and move on, the worker pool
// drives the sender, and failures never propagate back to the commit that
// produced them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"github.com/shiftline/marketplace/internal/tasks"
	"github.com/shiftline/marketplace/pkg/models"
)

// TaskType is the queue type notification deliveries run under.
const TaskType = "notify.push"

// Push is one outbound notification.
type Push struct {
	UserID int64          `json:"user_id"`
	Event  string         `json:"event"`
	Title  string         `json:"title"`
	Body   string         `json:"body,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// Sender delivers a push to the downstream notification service.
type Sender interface {
	Send(ctx context.Context, p Push) error
}

// WebhookSender posts pushes as JSON to a configured endpoint.
type WebhookSender struct {
	url    string
	client *http.Client
}

func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSender{url: url, client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSender) Send(ctx context.Context, p Push) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal push: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("deliver push: status %d", resp.StatusCode)
	}
	return nil
}

// MemorySender stores pushes in memory for inspection in tests.
type MemorySender struct {
	mu     sync.Mutex
	pushes []Push
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (m *MemorySender) Send(_ context.Context, p Push) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushes = append(m.pushes, p)
	return nil
}

// Pushes returns a copy of pushes seen so far.
func (m *MemorySender) Pushes() []Push {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Push, len(m.pushes))
	copy(out, m.pushes)
	return out
}

// Notifier enqueues pushes onto the worker pool. Enqueue failures are logged
// and swallowed so they never fail the transition that triggered them.
type Notifier struct {
	pool   *tasks.WorkerPool
	logger *slog.Logger
}

func NewNotifier(pool *tasks.WorkerPool, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{pool: pool, logger: logger}
}

// Notify schedules delivery of p. Safe to call with a nil Notifier or nil
// pool, which turns it into a no-op.
func (n *Notifier) Notify(ctx context.Context, p Push) {
	if n == nil || n.pool == nil {
		return
	}
	if _, err := n.pool.Enqueue(ctx, TaskType, p, 100, 3); err != nil {
		n.logger.Warn("enqueue notification", "event", p.Event, "user_id", p.UserID, "err", err)
	}
}

// Handlers returns the task handlers that drive the sender.
func Handlers(sender Sender, logger *slog.Logger) map[string]tasks.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return map[string]tasks.Handler{
		TaskType: func(ctx context.Context, t *models.Task) error {
			var p Push
			if err := json.Unmarshal(t.Payload, &p); err != nil {
				// malformed payloads will never succeed; log and drop
				logger.Error("bad push payload", "task_id", t.ID, "err", err)
				return nil
			}
			if err := sender.Send(ctx, p); err != nil {
				logger.Warn("push delivery failed", "event", p.Event, "user_id", p.UserID, "err", err)
				return err
			}
			return nil
		},
	}
}
