// Package repository defines the durable store and its implementations.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xiaot623/gogo/agents/internal/domain"
)

// Store defines the interface for data persistence.
// Getters return (nil, nil) when the row does not exist.
type Store interface {
	// Execution operations
	CreateExecution(ctx context.Context, rec *domain.ExecutionRecord) error
	FinishExecution(ctx context.Context, id string, status domain.ExecutionStatus, output json.RawMessage, errorMessage string, durationMs int64) (bool, error)
	GetExecution(ctx context.Context, id string) (*domain.ExecutionRecord, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]domain.ExecutionRecord, error)

	// Conversation operations
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	GetActiveConversation(ctx context.Context, userID string) (*domain.Conversation, error)
	UpdateConversationStatus(ctx context.Context, id string, status domain.ConversationStatus) error

	// Message operations
	CreateMessage(ctx context.Context, msg *domain.Message) error
	GetMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)

	// Lifecycle
	Close() error
}

// ExecutionFilter narrows ListExecutions. Zero values match everything.
type ExecutionFilter struct {
	AgentID        string
	ConversationID string
	Status         domain.ExecutionStatus
	Limit          int
}

// Table names shared by every backend.
const (
	TableExecutions    = "agent_executions"
	TableConversations = "conversations"
	TableMessages      = "messages"
)

// Backends accepted by Open.
const (
	BackendSQL  = "sql"
	BackendBolt = "bolt"
	BackendREST = "rest"
)

// Options selects and configures a Store backend.
type Options struct {
	Backend string
	Driver  string
	DSN     string
	Path    string
	RESTURL string
	RESTKey string
	Timeout time.Duration
}

// Open creates the Store selected by opts.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendSQL:
		return NewSQLStore(opts.Driver, opts.DSN)
	case BackendBolt:
		if opts.Path == "" {
			return nil, fmt.Errorf("bolt store requires a file path")
		}
		return NewBoltStore(opts.Path)
	case BackendREST:
		if opts.RESTURL == "" {
			return nil, fmt.Errorf("rest store requires a base url")
		}
		return NewRESTStore(opts.RESTURL, opts.RESTKey, opts.Timeout), nil
	}
	return nil, fmt.Errorf("unsupported store backend: %s", opts.Backend)
}
