package helpers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/xiaot623/gogo/agents/internal/domain"
	"github.com/xiaot623/gogo/agents/internal/repository"
)

// ErrStoreDown is returned by a RecordingStore with FailWrites set.
var ErrStoreDown = errors.New("store unavailable")

// RecordingStore wraps a Store, counts write calls and can fail them.
type RecordingStore struct {
	repository.Store

	mu         sync.Mutex
	writes     int
	FailWrites bool
}

func NewRecordingStore(inner repository.Store) *RecordingStore {
	return &RecordingStore{Store: inner}
}

// Writes returns the number of write calls seen, failed ones included.
func (s *RecordingStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *RecordingStore) write() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.FailWrites {
		return ErrStoreDown
	}
	return nil
}

func (s *RecordingStore) CreateExecution(ctx context.Context, rec *domain.ExecutionRecord) error {
	if err := s.write(); err != nil {
		return err
	}
	return s.Store.CreateExecution(ctx, rec)
}

func (s *RecordingStore) FinishExecution(ctx context.Context, id string, status domain.ExecutionStatus, output json.RawMessage, errorMessage string, durationMs int64) (bool, error) {
	if err := s.write(); err != nil {
		return false, err
	}
	return s.Store.FinishExecution(ctx, id, status, output, errorMessage, durationMs)
}

func (s *RecordingStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	if err := s.write(); err != nil {
		return err
	}
	return s.Store.CreateConversation(ctx, conv)
}

func (s *RecordingStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	if err := s.write(); err != nil {
		return err
	}
	return s.Store.CreateMessage(ctx, msg)
}
