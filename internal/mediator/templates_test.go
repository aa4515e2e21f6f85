package mediator

import (
	"strings"
	"testing"
)

func TestTemplateCatalogue(t *testing.T) {
	store := NewTemplateStore()

	for _, key := range []string{TplJobAccepted, TplJobCompleted, TplJobCancelled, TplNumberShared, TplUserReported, TplUserBlocked} {
		if _, ok := store.Raw(key); !ok {
			t.Fatalf("catalogue missing template %s", key)
		}
	}
}

func TestRender(t *testing.T) {
	store := NewTemplateStore()

	out, err := store.Render(TplNumberShared, NumberSharedData{Name: "Erin", Phone: "555-0199"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "Erin") || !strings.Contains(out, "555-0199") {
		t.Fatalf("rendered %q, missing name or phone", out)
	}

	if _, err := store.Render("missing", nil); err == nil {
		t.Fatal("render of unknown template must error")
	}
}

func TestRegisterRejectsBadTemplate(t *testing.T) {
	store := NewTemplateStore()
	if err := store.Register("broken", "{{.Unclosed"); err == nil {
		t.Fatal("invalid template must not register")
	}
}
