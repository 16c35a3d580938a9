package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/gogo/agents/internal/domain"
)

// SQLStore implements Store on database/sql.
// It speaks the sqlite3, postgres and mysql dialects.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore opens the database and runs migrations.
func NewSQLStore(driver, dsn string) (*SQLStore, error) {
	dialect, err := normalizeDialect(driver)
	if err != nil {
		return nil, err
	}

	if dialect == DialectMySQL {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to parse mysql dsn: %w", err)
		}
		// Timestamps are scanned into time.Time and stored as UTC.
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		dsn = cfg.FormatDSN()
	}

	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		// For in-memory SQLite, multiple connections create separate databases.
		if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
			db.SetMaxOpenConns(1)
			db.SetMaxIdleConns(1)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	store := &SQLStore{db: db, dialect: dialect}
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func normalizeDialect(driver string) (string, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	}
	return "", fmt.Errorf("unsupported sql driver: %s (supported: sqlite3, postgres, mysql)", driver)
}

// Migrate creates the tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, m := range migrations(s.dialect) {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

const executionColumns = `id, conversation_id, agent_id, input, output, status, error_message, duration_ms, created_at`

// CreateExecution inserts a new execution record.
func (s *SQLStore) CreateExecution(ctx context.Context, rec *domain.ExecutionRecord) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO agent_executions (`+executionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, nullString(rec.ConversationID), rec.AgentID, nullStringBytes(rec.Input), nullStringBytes(rec.Output),
		rec.Status, nullString(rec.ErrorMessage), rec.DurationMs, rec.CreatedAt.UTC())
	return err
}

// FinishExecution moves a running execution to a terminal state.
// It reports false when no running row with that id exists.
func (s *SQLStore) FinishExecution(ctx context.Context, id string, status domain.ExecutionStatus, output json.RawMessage, errorMessage string, durationMs int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE agent_executions SET status = ?, output = ?, error_message = ?, duration_ms = ? WHERE id = ? AND status = ?`),
		status, nullStringBytes(output), nullString(errorMessage), durationMs, id, domain.ExecutionStatusRunning)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetExecution retrieves an execution by ID.
func (s *SQLStore) GetExecution(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+executionColumns+` FROM agent_executions WHERE id = ?`), id)
	rec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListExecutions lists executions, newest first.
func (s *SQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]domain.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM agent_executions WHERE 1 = 1`
	var args []interface{}

	if filter.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, filter.AgentID)
	}
	if filter.ConversationID != "" {
		query += ` AND conversation_id = ?`
		args = append(args, filter.ConversationID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}

	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExecution(row rowScanner) (*domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	var conversationID, input, output, errorMessage sql.NullString
	if err := row.Scan(&rec.ID, &conversationID, &rec.AgentID, &input, &output, &rec.Status, &errorMessage, &rec.DurationMs, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if conversationID.Valid {
		rec.ConversationID = conversationID.String
	}
	if input.Valid {
		rec.Input = json.RawMessage(input.String)
	}
	if output.Valid {
		rec.Output = json.RawMessage(output.String)
	}
	if errorMessage.Valid {
		rec.ErrorMessage = errorMessage.String
	}
	return &rec, nil
}

// CreateConversation creates a new conversation.
func (s *SQLStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO conversations (id, user_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`),
		conv.ID, conv.UserID, conv.Status, conv.CreatedAt.UTC(), conv.UpdatedAt.UTC())
	return err
}

// GetConversation retrieves a conversation by ID.
func (s *SQLStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, user_id, status, created_at, updated_at FROM conversations WHERE id = ?`), id).
		Scan(&conv.ID, &conv.UserID, &conv.Status, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetActiveConversation returns the most recently created active conversation of a user.
func (s *SQLStore) GetActiveConversation(ctx context.Context, userID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, user_id, status, created_at, updated_at FROM conversations
		 WHERE user_id = ? AND status = ?
		 ORDER BY created_at DESC
		 LIMIT 1`), userID, domain.ConversationStatusActive).
		Scan(&conv.ID, &conv.UserID, &conv.Status, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// UpdateConversationStatus updates the status of a conversation.
func (s *SQLStore) UpdateConversationStatus(ctx context.Context, id string, status domain.ConversationStatus) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`),
		status, time.Now().UTC(), id)
	return err
}

// CreateMessage creates a new message.
func (s *SQLStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO messages (id, conversation_id, role, content, agent_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		msg.ID, msg.ConversationID, msg.Role, msg.Content, nullString(msg.AgentID), msg.CreatedAt.UTC())
	return err
}

// GetMessages retrieves messages of a conversation in insertion order.
func (s *SQLStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	query := `SELECT id, conversation_id, role, content, agent_id, created_at FROM messages WHERE conversation_id = ? ORDER BY ` + s.messageOrder()
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var agentID sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &agentID, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if agentID.Valid {
			msg.AgentID = agentID.String
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// messageOrder is the insertion order key. Timestamps can tie within one
// clock tick, so the order comes from a per-row counter.
func (s *SQLStore) messageOrder() string {
	if s.dialect == DialectSQLite {
		return "rowid ASC"
	}
	return "seq ASC"
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
