// Package llm provides an abstraction over text completion providers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xiaot623/gogo/agents/internal/domain"
)

// Provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderMock      = "mock"
)

// ErrEmptyCompletion is returned when a provider answers with no text.
var ErrEmptyCompletion = errors.New("llm returned an empty completion")

// Prompt is a single-turn completion request.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int64
	Temperature float64
}

// Completion is the provider answer.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Completer defines the interface for completion providers.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (*Completion, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
	Timeout   time.Duration
}

// New creates the Completer named by cfg.Provider.
func New(cfg Config) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderAnthropic, "":
		return NewAnthropicClient(cfg), nil
	case ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	case ProviderMock:
		return NewMockClient(), nil
	}
	return nil, fmt.Errorf("unsupported llm provider: %s (supported: anthropic, openai, mock)", cfg.Provider)
}

func apiError(statusCode int, err error) error {
	return &domain.CollaboratorError{
		Collaborator: "llm",
		StatusCode:   statusCode,
		Message:      http.StatusText(statusCode),
		Err:          err,
	}
}

func finish(text, model string, in, out int64) (*Completion, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyCompletion
	}
	return &Completion{Text: text, Model: model, InputTokens: in, OutputTokens: out}, nil
}
