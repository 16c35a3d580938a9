// Package execlog records the lifecycle of agent invocations.
//
// An execution is inserted as running by Start and moved exactly once to
// success or error by Complete or Fail. Every method returns its error to the
// caller; the agent runner decides to drop them, so a failing store never
// changes the response of an invocation.
package execlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/agents/internal/domain"
)

var (
	// ErrEmptyAgentID is returned by Start when no agent id is given.
	ErrEmptyAgentID = errors.New("agent id is required")
	// ErrNotRunning is returned when the execution is missing or already terminal.
	ErrNotRunning = errors.New("execution is not running")
)

// Store is the persistence the logger needs.
type Store interface {
	CreateExecution(ctx context.Context, rec *domain.ExecutionRecord) error
	FinishExecution(ctx context.Context, id string, status domain.ExecutionStatus, output json.RawMessage, errorMessage string, durationMs int64) (bool, error)
}

// Logger writes execution records to a Store.
type Logger struct {
	store Store
	now   func() time.Time
	newID func() string
}

// New creates a new execution logger.
func New(store Store) *Logger {
	return &Logger{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Start inserts a running execution and returns its id.
// On failure the id is empty, which Complete and Fail treat as a no-op.
func (l *Logger) Start(ctx context.Context, conversationID, agentID string, input any) (string, error) {
	if agentID == "" {
		return "", ErrEmptyAgentID
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to marshal input: %w", err)
	}

	rec := &domain.ExecutionRecord{
		ID:             l.newID(),
		ConversationID: conversationID,
		AgentID:        agentID,
		Input:          payload,
		Status:         domain.ExecutionStatusRunning,
		CreatedAt:      l.now().UTC(),
	}
	if err := l.store.CreateExecution(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to create execution: %w", err)
	}
	return rec.ID, nil
}

// Complete marks the execution successful.
func (l *Logger) Complete(ctx context.Context, executionID string, output any, durationMs int64) error {
	if executionID == "" {
		return nil
	}

	payload, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	return l.finish(ctx, executionID, domain.ExecutionStatusSuccess, payload, "", durationMs)
}

// Fail marks the execution failed with the given message.
func (l *Logger) Fail(ctx context.Context, executionID, errorMessage string, durationMs int64) error {
	if executionID == "" {
		return nil
	}
	return l.finish(ctx, executionID, domain.ExecutionStatusError, nil, errorMessage, durationMs)
}

func (l *Logger) finish(ctx context.Context, executionID string, status domain.ExecutionStatus, output json.RawMessage, errorMessage string, durationMs int64) error {
	if durationMs < 0 {
		durationMs = 0
	}
	ok, err := l.store.FinishExecution(ctx, executionID, status, output, errorMessage, durationMs)
	if err != nil {
		return fmt.Errorf("failed to finish execution %s: %w", executionID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, executionID)
	}
	return nil
}
