package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// Agent identifiers. The set is closed: every payload variant is keyed by one.
const (
	AgentNova = "nova"
	AgentIris = "iris"
)

// Payload is an agent-specific input or output document.
type Payload interface {
	AgentID() string
}

// NovaInput asks the content agent for a social post draft.
type NovaInput struct {
	Topic    string `json:"topic"`
	Platform string `json:"platform"`
	Tone     string `json:"tone,omitempty"`
	Audience string `json:"audience,omitempty"`
}

func (*NovaInput) AgentID() string { return AgentNova }

// Validate checks required fields.
func (in *NovaInput) Validate() error {
	if in.Topic == "" {
		return &ValidationError{Field: "topic", Reason: "is required"}
	}
	if in.Platform == "" {
		return &ValidationError{Field: "platform", Reason: "is required"}
	}
	return nil
}

// NovaOutput is the generated draft.
type NovaOutput struct {
	Draft          string   `json:"draft"`
	Platform       string   `json:"platform,omitempty"`
	Sources        []string `json:"sources,omitempty"`
	ConversationID string   `json:"conversationId,omitempty"`
}

func (*NovaOutput) AgentID() string { return AgentNova }

// IrisInput is one form submission received by the intake agent.
type IrisInput struct {
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	Company      string  `json:"company,omitempty"`
	Role         string  `json:"role,omitempty"`
	Budget       float64 `json:"budget,omitempty"`
	TimelineDays int     `json:"timelineDays,omitempty"`
	Message      string  `json:"message,omitempty"`
	Source       string  `json:"source,omitempty"`
}

func (*IrisInput) AgentID() string { return AgentIris }

// Validate checks required fields.
func (in *IrisInput) Validate() error {
	if in.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if in.Email == "" {
		return &ValidationError{Field: "email", Reason: "is required"}
	}
	return nil
}

// IrisOutput is the qualification result for a submission.
type IrisOutput struct {
	LeadID   string   `json:"leadId"`
	Tier     string   `json:"tier"`
	Score    int      `json:"score"`
	Reasons  []string `json:"reasons"`
	Notified bool     `json:"notified"`
	EmailID  string   `json:"emailId,omitempty"`
}

func (*IrisOutput) AgentID() string { return AgentIris }

// KnownAgent reports whether id names a payload variant.
func KnownAgent(id string) bool {
	return id == AgentNova || id == AgentIris
}

// DecodeInput decodes the raw input of a request into the payload variant of
// agentID. A missing or null input decodes to the zero variant so required
// fields surface as validation failures inside the agent. A field of the
// wrong type is reported as a *ValidationError.
func DecodeInput(agentID string, raw json.RawMessage) (Payload, error) {
	var in Payload
	switch agentID {
	case AgentNova:
		in = &NovaInput{}
	case AgentIris:
		in = &IrisInput{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return in, nil
	}
	if err := json.Unmarshal(trimmed, in); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			field := typeErr.Field
			if field == "" {
				field = "input"
			}
			return nil, &ValidationError{Field: field, Reason: fmt.Sprintf("must be %s (got %s)", kindName(typeErr.Type), typeErr.Value)}
		}
		return nil, fmt.Errorf("invalid input for agent %s: %w", agentID, err)
	}
	return in, nil
}

func kindName(t reflect.Type) string {
	if t == nil {
		return "a different type"
	}
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "an integer"
	case reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.Struct, reflect.Map:
		return "an object"
	case reflect.Slice, reflect.Array:
		return "an array"
	case reflect.Pointer:
		return kindName(t.Elem())
	}
	return t.String()
}
