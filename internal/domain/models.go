package domain

import (
	"encoding/json"
	"time"
)

// ExecutionRecord is one row per invocation attempt.
// It is inserted as running and updated exactly once to success or error.
type ExecutionRecord struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversationId,omitempty"`
	AgentID        string          `json:"agentId"`
	Input          json.RawMessage `json:"input,omitempty"`
	Output         json.RawMessage `json:"output,omitempty"`
	Status         ExecutionStatus `json:"status"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	DurationMs     int64           `json:"durationMs"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Conversation groups messages of a multi-turn interaction.
type Conversation struct {
	ID        string             `json:"id"`
	UserID    string             `json:"userId"`
	Status    ConversationStatus `json:"status"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Message is one immutable exchange unit within a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	AgentID        string    `json:"agentId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
