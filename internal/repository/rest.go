package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xiaot623/gogo/agents/internal/domain"
)

// RESTStore implements Store against a PostgREST endpoint (e.g. Supabase).
// Rows are inserted with return=representation and updated by primary key.
type RESTStore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Store = (*RESTStore)(nil)

// NewRESTStore creates a new PostgREST store. baseURL is the project URL;
// requests go to baseURL + "/rest/v1/<table>".
func NewRESTStore(baseURL, apiKey string, timeout time.Duration) *RESTStore {
	return &RESTStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type executionRow struct {
	ID             string          `json:"id"`
	ConversationID *string         `json:"conversation_id"`
	AgentID        string          `json:"agent_id"`
	Input          json.RawMessage `json:"input,omitempty"`
	Output         json.RawMessage `json:"output,omitempty"`
	Status         string          `json:"status"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	DurationMs     int64           `json:"duration_ms"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (r executionRow) toDomain() domain.ExecutionRecord {
	rec := domain.ExecutionRecord{
		ID:         r.ID,
		AgentID:    r.AgentID,
		Status:     domain.ExecutionStatus(r.Status),
		DurationMs: r.DurationMs,
		CreatedAt:  r.CreatedAt,
	}
	if r.ConversationID != nil {
		rec.ConversationID = *r.ConversationID
	}
	if len(r.Input) > 0 && string(r.Input) != "null" {
		rec.Input = r.Input
	}
	if len(r.Output) > 0 && string(r.Output) != "null" {
		rec.Output = r.Output
	}
	if r.ErrorMessage != nil {
		rec.ErrorMessage = *r.ErrorMessage
	}
	return rec
}

type conversationRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r conversationRow) toDomain() *domain.Conversation {
	return &domain.Conversation{
		ID:        r.ID,
		UserID:    r.UserID,
		Status:    domain.ConversationStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type messageRow struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	AgentID        *string   `json:"agent_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateExecution inserts a new execution record.
func (s *RESTStore) CreateExecution(ctx context.Context, rec *domain.ExecutionRecord) error {
	row := executionRow{
		ID:             rec.ID,
		ConversationID: optional(rec.ConversationID),
		AgentID:        rec.AgentID,
		Input:          rec.Input,
		Output:         rec.Output,
		Status:         string(rec.Status),
		ErrorMessage:   optional(rec.ErrorMessage),
		DurationMs:     rec.DurationMs,
		CreatedAt:      rec.CreatedAt.UTC(),
	}
	var created []executionRow
	if err := s.do(ctx, http.MethodPost, TableExecutions, nil, row, &created); err != nil {
		return err
	}
	if len(created) > 0 && created[0].ID != "" {
		rec.ID = created[0].ID
	}
	return nil
}

// FinishExecution moves a running execution to a terminal state.
func (s *RESTStore) FinishExecution(ctx context.Context, id string, status domain.ExecutionStatus, output json.RawMessage, errorMessage string, durationMs int64) (bool, error) {
	patch := map[string]interface{}{
		"status":        status,
		"output":        nullableJSON(output),
		"error_message": optional(errorMessage),
		"duration_ms":   durationMs,
	}
	query := url.Values{}
	query.Set("id", "eq."+id)
	query.Set("status", "eq."+string(domain.ExecutionStatusRunning))

	var updated []executionRow
	if err := s.do(ctx, http.MethodPatch, TableExecutions, query, patch, &updated); err != nil {
		return false, err
	}
	return len(updated) > 0, nil
}

// GetExecution retrieves an execution by ID.
func (s *RESTStore) GetExecution(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	query := url.Values{}
	query.Set("id", "eq."+id)
	query.Set("limit", "1")

	var rows []executionRow
	if err := s.do(ctx, http.MethodGet, TableExecutions, query, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rec := rows[0].toDomain()
	return &rec, nil
}

// ListExecutions lists executions, newest first.
func (s *RESTStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]domain.ExecutionRecord, error) {
	query := url.Values{}
	if filter.AgentID != "" {
		query.Set("agent_id", "eq."+filter.AgentID)
	}
	if filter.ConversationID != "" {
		query.Set("conversation_id", "eq."+filter.ConversationID)
	}
	if filter.Status != "" {
		query.Set("status", "eq."+string(filter.Status))
	}
	query.Set("order", "created_at.desc")
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}

	var rows []executionRow
	if err := s.do(ctx, http.MethodGet, TableExecutions, query, nil, &rows); err != nil {
		return nil, err
	}
	records := make([]domain.ExecutionRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.toDomain())
	}
	return records, nil
}

// CreateConversation creates a new conversation.
func (s *RESTStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	row := conversationRow{
		ID:        conv.ID,
		UserID:    conv.UserID,
		Status:    string(conv.Status),
		CreatedAt: conv.CreatedAt.UTC(),
		UpdatedAt: conv.UpdatedAt.UTC(),
	}
	var created []conversationRow
	if err := s.do(ctx, http.MethodPost, TableConversations, nil, row, &created); err != nil {
		return err
	}
	if len(created) > 0 && created[0].ID != "" {
		conv.ID = created[0].ID
	}
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *RESTStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	query := url.Values{}
	query.Set("id", "eq."+id)
	query.Set("limit", "1")
	return s.firstConversation(ctx, query)
}

// GetActiveConversation returns the most recently created active conversation of a user.
func (s *RESTStore) GetActiveConversation(ctx context.Context, userID string) (*domain.Conversation, error) {
	query := url.Values{}
	query.Set("user_id", "eq."+userID)
	query.Set("status", "eq."+string(domain.ConversationStatusActive))
	query.Set("order", "created_at.desc")
	query.Set("limit", "1")
	return s.firstConversation(ctx, query)
}

func (s *RESTStore) firstConversation(ctx context.Context, query url.Values) (*domain.Conversation, error) {
	var rows []conversationRow
	if err := s.do(ctx, http.MethodGet, TableConversations, query, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toDomain(), nil
}

// UpdateConversationStatus updates the status of a conversation.
func (s *RESTStore) UpdateConversationStatus(ctx context.Context, id string, status domain.ConversationStatus) error {
	query := url.Values{}
	query.Set("id", "eq."+id)
	patch := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	return s.do(ctx, http.MethodPatch, TableConversations, query, patch, nil)
}

// CreateMessage creates a new message.
func (s *RESTStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	row := messageRow{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Role:           string(msg.Role),
		Content:        msg.Content,
		AgentID:        optional(msg.AgentID),
		CreatedAt:      msg.CreatedAt.UTC(),
	}
	var created []messageRow
	if err := s.do(ctx, http.MethodPost, TableMessages, nil, row, &created); err != nil {
		return err
	}
	if len(created) > 0 && created[0].ID != "" {
		msg.ID = created[0].ID
	}
	return nil
}

// GetMessages retrieves messages of a conversation in insertion order.
func (s *RESTStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	query := url.Values{}
	query.Set("conversation_id", "eq."+conversationID)
	query.Set("order", "seq.asc")
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var rows []messageRow
	if err := s.do(ctx, http.MethodGet, TableMessages, query, nil, &rows); err != nil {
		return nil, err
	}
	messages := make([]domain.Message, 0, len(rows))
	for _, r := range rows {
		msg := domain.Message{
			ID:             r.ID,
			ConversationID: r.ConversationID,
			Role:           domain.Role(r.Role),
			Content:        r.Content,
			CreatedAt:      r.CreatedAt,
		}
		if r.AgentID != nil {
			msg.AgentID = *r.AgentID
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Close releases idle connections.
func (s *RESTStore) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

// do sends one PostgREST request and decodes the JSON array response into out.
func (s *RESTStore) do(ctx context.Context, method, table string, query url.Values, body, out interface{}) error {
	endpoint := s.baseURL + "/rest/v1/" + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(req)
	if method == http.MethodPost || method == http.MethodPatch {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &domain.CollaboratorError{Collaborator: "store", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		msg := string(respBody)
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return &domain.CollaboratorError{Collaborator: "store", StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// setHeaders sets common request headers.
func (s *RESTStore) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableJSON(b json.RawMessage) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("null")
	}
	return b
}
