package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/xiaot623/gogo/agents/internal/domain"
)

// ErrConversationNotFound is returned when a message references a missing conversation.
var ErrConversationNotFound = errors.New("conversation not found")

// BoltStore implements Store on a single BoltDB file. Executions and
// conversations are JSON documents keyed by id; messages live in one nested
// bucket per conversation, keyed by a sequence number so iteration follows
// insertion order.
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens (or creates) the database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create bolt directory: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	store := &BoltStore{db: db}
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates the top-level buckets.
func (s *BoltStore) Migrate(ctx context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{TableExecutions, TableConversations, TableMessages} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

// CreateExecution inserts a new execution record.
func (s *BoltStore) CreateExecution(ctx context.Context, rec *domain.ExecutionRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(TableExecutions))
		if b.Get([]byte(rec.ID)) != nil {
			return fmt.Errorf("execution %s already exists", rec.ID)
		}
		stored := *rec
		stored.CreatedAt = rec.CreatedAt.UTC()
		return putJSON(b, rec.ID, &stored)
	})
}

// FinishExecution moves a running execution to a terminal state.
func (s *BoltStore) FinishExecution(ctx context.Context, id string, status domain.ExecutionStatus, output json.RawMessage, errorMessage string, durationMs int64) (bool, error) {
	updated := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(TableExecutions))
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		var rec domain.ExecutionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		if rec.Status != domain.ExecutionStatusRunning {
			return nil
		}
		rec.Status = status
		rec.Output = output
		rec.ErrorMessage = errorMessage
		rec.DurationMs = durationMs
		updated = true
		return putJSON(b, id, &rec)
	})
	return updated, err
}

// GetExecution retrieves an execution by ID.
func (s *BoltStore) GetExecution(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	var rec *domain.ExecutionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(TableExecutions)).Get([]byte(id))
		if data == nil {
			return nil
		}
		rec = &domain.ExecutionRecord{}
		return json.Unmarshal(data, rec)
	})
	return rec, err
}

// ListExecutions lists executions, newest first.
func (s *BoltStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]domain.ExecutionRecord, error) {
	var records []domain.ExecutionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(TableExecutions)).ForEach(func(_, v []byte) error {
			var rec domain.ExecutionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if filter.AgentID != "" && rec.AgentID != filter.AgentID {
				return nil
			}
			if filter.ConversationID != "" && rec.ConversationID != filter.ConversationID {
				return nil
			}
			if filter.Status != "" && rec.Status != filter.Status {
				return nil
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}

// CreateConversation creates a new conversation.
func (s *BoltStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(TableConversations))
		if b.Get([]byte(conv.ID)) != nil {
			return fmt.Errorf("conversation %s already exists", conv.ID)
		}
		stored := *conv
		stored.CreatedAt = conv.CreatedAt.UTC()
		stored.UpdatedAt = conv.UpdatedAt.UTC()
		return putJSON(b, conv.ID, &stored)
	})
}

// GetConversation retrieves a conversation by ID.
func (s *BoltStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv *domain.Conversation
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(TableConversations)).Get([]byte(id))
		if data == nil {
			return nil
		}
		conv = &domain.Conversation{}
		return json.Unmarshal(data, conv)
	})
	return conv, err
}

// GetActiveConversation returns the most recently created active conversation of a user.
func (s *BoltStore) GetActiveConversation(ctx context.Context, userID string) (*domain.Conversation, error) {
	var latest *domain.Conversation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(TableConversations)).ForEach(func(_, v []byte) error {
			var conv domain.Conversation
			if err := json.Unmarshal(v, &conv); err != nil {
				return err
			}
			if conv.UserID != userID || conv.Status != domain.ConversationStatusActive {
				return nil
			}
			if latest == nil || conv.CreatedAt.After(latest.CreatedAt) {
				latest = &conv
			}
			return nil
		})
	})
	return latest, err
}

// UpdateConversationStatus updates the status of a conversation.
func (s *BoltStore) UpdateConversationStatus(ctx context.Context, id string, status domain.ConversationStatus) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(TableConversations))
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		var conv domain.Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			return err
		}
		conv.Status = status
		conv.UpdatedAt = time.Now().UTC()
		return putJSON(b, id, &conv)
	})
}

// CreateMessage appends a message to its conversation.
func (s *BoltStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(TableConversations)).Get([]byte(msg.ConversationID)) == nil {
			return fmt.Errorf("%w: %s", ErrConversationNotFound, msg.ConversationID)
		}
		b, err := tx.Bucket([]byte(TableMessages)).CreateBucketIfNotExists([]byte(msg.ConversationID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		stored := *msg
		stored.CreatedAt = msg.CreatedAt.UTC()
		data, err := json.Marshal(&stored)
		if err != nil {
			return err
		}
		return b.Put(sequenceKey(seq), data)
	})
}

// GetMessages retrieves messages of a conversation in insertion order.
func (s *BoltStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(TableMessages)).Bucket([]byte(conversationID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var msg domain.Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return err
			}
			messages = append(messages, msg)
			if limit > 0 && len(messages) == limit {
				break
			}
		}
		return nil
	})
	return messages, err
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
