// Package mediator binds engagements to conversations and appends the
// messages that narrate committed transitions. It must only be invoked
// after the owning component's store commit is acknowledged, so a message
// never claims a state that failed to persist.
package mediator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/shiftline/marketplace/internal/notify"
	"github.com/shiftline/marketplace/pkg/engage"
	"github.com/shiftline/marketplace/pkg/models"
	"github.com/shiftline/marketplace/pkg/repository"
)

func nowUnix() int64 {
	return time.Now().UTC().Unix()
}

type Mediator struct {
	convs     repository.ConversationRepo
	msgs      repository.MessageRepo
	blocks    repository.BlockRepo
	templates *TemplateStore
	notifier  *notify.Notifier
	logger    *slog.Logger
}

func New(convs repository.ConversationRepo, msgs repository.MessageRepo, blocks repository.BlockRepo, notifier *notify.Notifier, logger *slog.Logger) *Mediator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mediator{
		convs:     convs,
		msgs:      msgs,
		blocks:    blocks,
		templates: NewTemplateStore(),
		notifier:  notifier,
		logger:    logger,
	}
}

// EnsureConversation returns the one conversation for the unordered user
// pair plus job, creating it on first use. jobID 0 binds no job.
func (m *Mediator) EnsureConversation(ctx context.Context, userA, userB, jobID int64) (*models.Conversation, error) {
	return m.convs.EnsureConversation(ctx, userA, userB, jobID)
}

// PostSystemMessage appends a system-kind message rendered from the fixed
// transition catalogue. System messages carry no executable effect.
func (m *Mediator) PostSystemMessage(ctx context.Context, conv *models.Conversation, templateKey string, data any) error {
	return m.postEngineMessage(ctx, conv, models.MessageSystem, templateKey, data)
}

// NumberSharedData feeds the number_shared template.
type NumberSharedData struct {
	Name  string
	Phone string
	JobID int64
}

// PostNumberShared appends the number_shared-kind message that records a
// committed disclosure.
func (m *Mediator) PostNumberShared(ctx context.Context, conv *models.Conversation, data NumberSharedData) error {
	return m.postEngineMessage(ctx, conv, models.MessageNumberShared, TplNumberShared, data)
}

func (m *Mediator) postEngineMessage(ctx context.Context, conv *models.Conversation, kind models.MessageKind, templateKey string, data any) error {
	if conv == nil {
		return fmt.Errorf("conversation: %w", engage.ErrNotFound)
	}
	content, err := m.templates.Render(templateKey, data)
	if err != nil {
		return fmt.Errorf("system message: %w", err)
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       models.SystemSenderID,
		Content:        content,
		Kind:           kind,
		Created:        nowUnix(),
	}
	if _, err := m.msgs.CreateMessage(ctx, msg); err != nil {
		return err
	}
	if err := m.convs.TouchLastMessage(ctx, conv.ID, msg.Created); err != nil {
		m.logger.Warn("touch conversation", "conversation_id", conv.ID, "err", err)
	}

	m.notifier.Notify(ctx, notify.Push{UserID: conv.ParticipantLo, Event: templateKey, Title: content})
	m.notifier.Notify(ctx, notify.Push{UserID: conv.ParticipantHi, Event: templateKey, Title: content})
	return nil
}

// PostUserMessage appends an ordinary user message. Guards: sender is a
// participant, content non-empty, and neither side blocks the other.
func (m *Mediator) PostUserMessage(ctx context.Context, conv *models.Conversation, senderID int64, content string) (*models.Message, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation: %w", engage.ErrNotFound)
	}
	if !conv.HasParticipant(senderID) {
		return nil, fmt.Errorf("sender %d is not a participant: %w", senderID, engage.ErrUnauthorized)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &engage.ValidationError{Field: "content", Reason: "message content must not be empty"}
	}

	counterpart := conv.Counterpart(senderID)
	blocked, err := m.blocks.Blocked(ctx, senderID, counterpart)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, fmt.Errorf("messaging blocked between %d and %d: %w", senderID, counterpart, engage.ErrUnauthorized)
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		Kind:           models.MessageUser,
		Created:        nowUnix(),
	}
	id, err := m.msgs.CreateMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.ID = id
	if err := m.convs.TouchLastMessage(ctx, conv.ID, msg.Created); err != nil {
		m.logger.Warn("touch conversation", "conversation_id", conv.ID, "err", err)
	}

	m.notifier.Notify(ctx, notify.Push{UserID: counterpart, Event: "message", Title: "New message", Body: content})
	return msg, nil
}
