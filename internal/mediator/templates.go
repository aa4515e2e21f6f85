package mediator

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Template keys for the fixed transition catalogue.
const (
	TplJobAccepted  = "job_accepted"
	TplJobCompleted = "job_completed"
	TplJobCancelled = "job_cancelled"
	TplNumberShared = "number_shared"
	TplUserReported = "user_reported"
	TplUserBlocked  = "user_blocked"
)

// TemplateStore compiles and renders the named system-message templates.
// The catalogue is fixed: system messages are the durable narrative of
// committed transitions, not free-form content.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
	raw       map[string]string
}

// NewTemplateStore seeds the store with the transition catalogue.
func NewTemplateStore() *TemplateStore {
	store := &TemplateStore{
		templates: make(map[string]*template.Template),
		raw:       make(map[string]string),
	}
	_ = store.Register(TplJobAccepted, "Job has been accepted. Use this conversation to coordinate the work.")
	_ = store.Register(TplJobCompleted, "Job has been marked as completed. Both of you must rate each other before continuing.")
	_ = store.Register(TplJobCancelled, "The employer cancelled this job posting.")
	_ = store.Register(TplNumberShared, "{{.Name}} shared their phone number: {{.Phone}}")
	_ = store.Register(TplUserReported, "{{.Name}} has been reported. Our team will review the conversation.")
	_ = store.Register(TplUserBlocked, "{{.Name}} has blocked this conversation.")
	return store
}

// Register adds or replaces a template definition.
func (s *TemplateStore) Register(name, body string) error {
	tmpl, err := template.New(name).Parse(body)
	if err != nil {
		return fmt.Errorf("parse template %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[name] = tmpl
	s.raw[name] = body
	return nil
}

// Render executes the template with the provided data.
func (s *TemplateStore) Render(name string, data any) (string, error) {
	s.mu.RLock()
	tmpl, ok := s.templates[name]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template %s not found", name)
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return out.String(), nil
}

// Raw returns the raw template text if present.
func (s *TemplateStore) Raw(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.raw[name]
	return body, ok
}
