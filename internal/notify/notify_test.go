package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shiftline/marketplace/internal/notify"
	"github.com/shiftline/marketplace/internal/tasks"
	"github.com/shiftline/marketplace/pkg/models"
	"github.com/shiftline/marketplace/pkg/repository/mock"
)

func TestMemorySender(t *testing.T) {
	s := notify.NewMemorySender()
	p := notify.Push{UserID: 7, Event: "job_accepted", Title: "You got the job"}
	if err := s.Send(context.Background(), p); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := s.Pushes()
	if len(got) != 1 || got[0].UserID != 7 || got[0].Event != "job_accepted" {
		t.Fatalf("pushes = %+v", got)
	}
}

func TestWebhookSender(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p notify.Push
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode push: %v", err)
		}
		received.Add(1)
	}))
	defer srv.Close()

	s := notify.NewWebhookSender(srv.URL, time.Second)
	if err := s.Send(context.Background(), notify.Push{UserID: 1, Event: "message"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if received.Load() != 1 {
		t.Fatalf("webhook received %d pushes, want 1", received.Load())
	}
}

func TestWebhookSenderReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := notify.NewWebhookSender(srv.URL, time.Second)
	if err := s.Send(context.Background(), notify.Push{UserID: 1}); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}

func TestHandlersDeliverThroughPool(t *testing.T) {
	ctx := context.Background()
	repo := mock.NewRepo()
	sender := notify.NewMemorySender()

	pool := tasks.NewWorkerPool(repo, notify.Handlers(sender, nil), nil, 1)
	pool.Start(ctx)
	defer pool.Stop()

	n := notify.NewNotifier(pool, nil)
	n.Notify(ctx, notify.Push{UserID: 4, Event: "job_completed", Title: "Job completed"})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := sender.Pushes(); len(got) == 1 {
			if got[0].UserID != 4 || got[0].Event != "job_completed" {
				t.Fatalf("delivered push = %+v", got[0])
			}
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("push never delivered")
}

func TestHandlerDropsMalformedPayload(t *testing.T) {
	sender := notify.NewMemorySender()
	h := notify.Handlers(sender, nil)[notify.TaskType]

	task := &models.Task{ID: 1, Type: notify.TaskType, Payload: []byte("{not json")}
	// a payload that can never parse must not be retried
	if err := h(context.Background(), task); err != nil {
		t.Fatalf("malformed payload err = %v, want nil (drop)", err)
	}
	if len(sender.Pushes()) != 0 {
		t.Fatal("malformed payload must not reach the sender")
	}
}

func TestNilNotifierIsNoop(t *testing.T) {
	var n *notify.Notifier
	// must not panic
	n.Notify(context.Background(), notify.Push{UserID: 1})
}
