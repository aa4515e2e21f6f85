package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/shiftline/marketplace/pkg/models"
	"github.com/shiftline/marketplace/pkg/repository/mock"
)

func TestConversationEndpoints(t *testing.T) {
	ctx := context.Background()
	repo := mock.NewRepo()
	a := repo.SeedUser("erin", models.RoleEmployer)
	b := repo.SeedUser("wes", models.RoleWorker)
	stranger := repo.SeedUser("sid", models.RoleWorker)

	conv, err := repo.EnsureConversation(ctx, a.ID, b.ID, 0)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	asA := testRouter(repo, asActor(a))
	asStranger := testRouter(repo, asActor(stranger))

	msgPath := fmt.Sprintf("/v1/conversations/%d/messages", conv.ID)

	// posting
	rr := doJSON(t, asA, http.MethodPost, msgPath, map[string]string{"content": "hello"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("post status = %d (body %s)", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, asA, http.MethodPost, msgPath, map[string]string{"content": "   "})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("blank post status = %d, want 422", rr.Code)
	}

	// non-participants see neither the thread nor its messages
	rr = doJSON(t, asStranger, http.MethodGet, msgPath, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("stranger list status = %d, want 403", rr.Code)
	}
	rr = doJSON(t, asStranger, http.MethodPost, msgPath, map[string]string{"content": "let me in"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("stranger post status = %d, want 403", rr.Code)
	}

	// listing
	rr = doJSON(t, asA, http.MethodGet, "/v1/conversations", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list conversations status = %d", rr.Code)
	}
	var convs struct {
		Items []models.Conversation `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &convs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(convs.Items) != 1 || convs.Items[0].ID != conv.ID {
		t.Fatalf("conversations = %+v", convs.Items)
	}

	rr = doJSON(t, asA, http.MethodGet, msgPath, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list messages status = %d", rr.Code)
	}
	var msgs struct {
		Items []models.Message `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs.Items) != 1 || msgs.Items[0].Content != "hello" {
		t.Fatalf("messages = %+v", msgs.Items)
	}
}

func TestBlockingOverHTTP(t *testing.T) {
	ctx := context.Background()
	repo := mock.NewRepo()
	a := repo.SeedUser("erin", models.RoleEmployer)
	b := repo.SeedUser("wes", models.RoleWorker)

	conv, _ := repo.EnsureConversation(ctx, a.ID, b.ID, 0)
	msgPath := fmt.Sprintf("/v1/conversations/%d/messages", conv.ID)

	asA := testRouter(repo, asActor(a))
	asB := testRouter(repo, asActor(b))

	rr := doJSON(t, asA, http.MethodPost, fmt.Sprintf("/v1/users/%d/block", b.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("block status = %d (body %s)", rr.Code, rr.Body.String())
	}

	// blocked in both directions
	rr = doJSON(t, asB, http.MethodPost, msgPath, map[string]string{"content": "hello?"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("blocked sender status = %d, want 403", rr.Code)
	}
	rr = doJSON(t, asA, http.MethodPost, msgPath, map[string]string{"content": "hi"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("blocking owner status = %d, want 403", rr.Code)
	}

	// unblock restores the thread
	rr = doJSON(t, asA, http.MethodPost, fmt.Sprintf("/v1/users/%d/unblock", b.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unblock status = %d", rr.Code)
	}
	rr = doJSON(t, asB, http.MethodPost, msgPath, map[string]string{"content": "hello again"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("post after unblock status = %d (body %s)", rr.Code, rr.Body.String())
	}

	// self-targeting is rejected before it reaches the store
	rr = doJSON(t, asA, http.MethodPost, fmt.Sprintf("/v1/users/%d/block", a.ID), nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("self block status = %d, want 400", rr.Code)
	}
}

func TestReportOverHTTP(t *testing.T) {
	repo := mock.NewRepo()
	a := repo.SeedUser("erin", models.RoleEmployer)
	b := repo.SeedUser("wes", models.RoleWorker)

	asA := testRouter(repo, asActor(a))
	rr := doJSON(t, asA, http.MethodPost, fmt.Sprintf("/v1/users/%d/report", b.ID), map[string]string{"reason": "spam"})
	if rr.Code != http.StatusOK {
		t.Fatalf("report status = %d (body %s)", rr.Code, rr.Body.String())
	}

	reports := repo.Reports()
	if len(reports) != 1 || reports[0].ReportedID != b.ID || reports[0].Reason != "spam" {
		t.Fatalf("reports = %+v", reports)
	}

	// the report is narrated into the pair conversation
	var narrated bool
	for _, msg := range repo.Messages() {
		if msg.Kind == models.MessageSystem {
			narrated = true
		}
	}
	if !narrated {
		t.Fatal("no system message recorded for the report")
	}

	// reporting a missing user is a 404
	rr = doJSON(t, asA, http.MethodPost, "/v1/users/9999/report", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing target status = %d, want 404", rr.Code)
	}
}
