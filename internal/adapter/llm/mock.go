package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockClient is a deterministic Completer for local runs and tests.
type MockClient struct{}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

var _ Completer = (*MockClient)(nil)

// Complete echoes the first line of the user prompt.
func (m *MockClient) Complete(ctx context.Context, prompt Prompt) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(prompt.User), "\n")
	text := fmt.Sprintf("[MOCK] %s", line)
	return &Completion{
		Text:         text,
		Model:        "mock",
		InputTokens:  int64(len(prompt.System)+len(prompt.User)) / 4,
		OutputTokens: int64(len(text)) / 4,
	}, nil
}
