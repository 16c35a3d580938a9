package domain

import (
	"encoding/json"
	"time"
)

// AgentRequest is the input envelope of every agent invocation.
type AgentRequest struct {
	ConversationID string          `json:"conversationId,omitempty"`
	UserID         string          `json:"userId"`
	Input          json.RawMessage `json:"input"`
	Metadata       RequestMetadata `json:"metadata,omitempty"`
}

// RequestMetadata is free-form invocation context. Trigger and Timestamp are
// always present on well-formed requests; anything else lands in Extra.
type RequestMetadata struct {
	Trigger   string         `json:"trigger,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Persist   bool           `json:"persist,omitempty"`
	Extra     map[string]any `json:"-"`
}

// UnmarshalJSON keeps unknown metadata keys in Extra.
func (m *RequestMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["trigger"].(string); ok {
		m.Trigger = v
	}
	if v, ok := raw["timestamp"].(string); ok {
		m.Timestamp = v
	}
	if v, ok := raw["persist"].(bool); ok {
		m.Persist = v
	}
	delete(raw, "trigger")
	delete(raw, "timestamp")
	delete(raw, "persist")
	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}

// MarshalJSON flattens Extra back next to the known keys.
func (m RequestMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+3)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.Trigger != "" {
		out["trigger"] = m.Trigger
	}
	if m.Timestamp != "" {
		out["timestamp"] = m.Timestamp
	}
	if m.Persist {
		out["persist"] = true
	}
	return json.Marshal(out)
}

// AgentResponse is the output envelope of every agent invocation.
// Exactly one of Output and Error is set, selected by Success.
type AgentResponse struct {
	Success  bool             `json:"success"`
	Output   Payload          `json:"output"`
	Error    *string          `json:"error"`
	Metadata ResponseMetadata `json:"metadata"`
}

// ResponseMetadata identifies the agent and execution that produced a response.
type ResponseMetadata struct {
	AgentID     string    `json:"agentId"`
	ExecutionID string    `json:"executionId,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewSuccessResponse builds a success envelope.
func NewSuccessResponse(agentID, executionID string, output Payload) *AgentResponse {
	return &AgentResponse{
		Success: true,
		Output:  output,
		Metadata: ResponseMetadata{
			AgentID:     agentID,
			ExecutionID: executionID,
			Timestamp:   time.Now().UTC(),
		},
	}
}

// NewErrorResponse builds a failure envelope.
func NewErrorResponse(agentID, executionID, message string) *AgentResponse {
	return &AgentResponse{
		Success: false,
		Error:   &message,
		Metadata: ResponseMetadata{
			AgentID:     agentID,
			ExecutionID: executionID,
			Timestamp:   time.Now().UTC(),
		},
	}
}

// ProbeResponse is returned by the liveness probe of an agent.
type ProbeResponse struct {
	AgentID                string `json:"agentId"`
	Status                 string `json:"status"`
	RequiredEnvVarsPresent bool   `json:"requiredEnvVarsPresent"`
}
