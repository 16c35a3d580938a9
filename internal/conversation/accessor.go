// Package conversation persists multi-turn message history next to the
// execution log.
//
// GetOrCreate is a read followed by an insert with no uniqueness constraint.
// Two concurrent calls for the same user can both miss and each create an
// active conversation; later lookups return the most recent one. Callers that
// need a single active conversation per user must serialize above this layer.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/agents/internal/domain"
)

// ErrNoConversation is returned by SaveMessage when no conversation id is given.
var ErrNoConversation = errors.New("conversation id is required")

// Store is the persistence the accessor needs.
type Store interface {
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	GetActiveConversation(ctx context.Context, userID string) (*domain.Conversation, error)
	CreateMessage(ctx context.Context, msg *domain.Message) error
	GetMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
}

// Accessor finds or creates conversations and appends messages.
type Accessor struct {
	store Store
	now   func() time.Time
}

// New creates a new conversation accessor.
func New(store Store) *Accessor {
	return &Accessor{store: store, now: time.Now}
}

// GetOrCreate returns the most recent active conversation of userID,
// creating one when none exists.
func (a *Accessor) GetOrCreate(ctx context.Context, userID string) (*domain.Conversation, error) {
	if userID == "" {
		return nil, &domain.ValidationError{Field: "userId", Reason: "is required"}
	}

	conv, err := a.store.GetActiveConversation(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active conversation: %w", err)
	}
	if conv != nil {
		return conv, nil
	}

	now := a.now().UTC()
	conv = &domain.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    domain.ConversationStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// Resume returns the conversation conversationID when it is an active
// conversation of userID. A conversation that does not exist and one owned by
// another user are reported the same way.
func (a *Accessor) Resume(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	if conversationID == "" {
		return nil, ErrNoConversation
	}

	conv, err := a.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if conv == nil || conv.UserID != userID {
		return nil, &domain.ValidationError{Field: "conversationId", Reason: fmt.Sprintf("%q was not found", conversationID)}
	}
	if conv.Status != domain.ConversationStatusActive {
		return nil, &domain.ValidationError{Field: "conversationId", Reason: fmt.Sprintf("%q is %s", conversationID, conv.Status)}
	}
	return conv, nil
}

// SaveMessage appends one message to a conversation.
// agentID is empty for messages not authored by an agent.
func (a *Accessor) SaveMessage(ctx context.Context, conversationID string, role domain.Role, content, agentID string) (*domain.Message, error) {
	if conversationID == "" {
		return nil, ErrNoConversation
	}
	if !role.Valid() {
		return nil, &domain.ValidationError{Field: "role", Reason: fmt.Sprintf("must be user, assistant or system (got %q)", role)}
	}

	msg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		AgentID:        agentID,
		CreatedAt:      a.now().UTC(),
	}
	if err := a.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return msg, nil
}

// Messages returns up to limit messages of a conversation in insertion order.
func (a *Accessor) Messages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if conversationID == "" {
		return nil, ErrNoConversation
	}
	messages, err := a.store.GetMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, nil
}
