// Package nova drafts social media posts from knowledge store material.
package nova

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xiaot623/gogo/agents/internal/adapter/knowledge"
	"github.com/xiaot623/gogo/agents/internal/adapter/llm"
	"github.com/xiaot623/gogo/agents/internal/agent"
	"github.com/xiaot623/gogo/agents/internal/domain"
)

// Character limits per platform.
var platformLimits = map[string]int{
	"linkedin":  3000,
	"x":         280,
	"twitter":   280,
	"instagram": 2200,
	"facebook":  63206,
}

// Gatherer finds reference documents for a topic.
type Gatherer interface {
	Gather(ctx context.Context, query string, limit int) ([]knowledge.Document, error)
}

// Conversations persists the exchange when a request asks for it.
type Conversations interface {
	GetOrCreate(ctx context.Context, userID string) (*domain.Conversation, error)
	Resume(ctx context.Context, conversationID, userID string) (*domain.Conversation, error)
	SaveMessage(ctx context.Context, conversationID string, role domain.Role, content, agentID string) (*domain.Message, error)
}

// Options configures the agent.
type Options struct {
	RequiredEnv []string
	ResultLimit int
	Temperature float64
	Logger      *slog.Logger
}

// Agent is the content drafting agent.
type Agent struct {
	completer     llm.Completer
	gatherer      Gatherer
	conversations Conversations
	opts          Options
}

var (
	_ agent.Agent    = (*Agent)(nil)
	_ agent.Preparer = (*Agent)(nil)
)

// New creates the agent. conversations may be nil to disable persistence.
func New(completer llm.Completer, gatherer Gatherer, conversations Conversations, opts Options) *Agent {
	if opts.ResultLimit <= 0 {
		opts.ResultLimit = 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Agent{completer: completer, gatherer: gatherer, conversations: conversations, opts: opts}
}

func (a *Agent) ID() string { return domain.AgentNova }

func (a *Agent) RequiredEnv() []string { return a.opts.RequiredEnv }

// Prepare checks the input and resolves the conversation the exchange is
// stored in, so the execution record carries it. A given conversation id must
// name an active conversation of the requesting user.
func (a *Agent) Prepare(ctx context.Context, inv *agent.Invocation) error {
	if !a.persists(inv.Request) {
		return nil
	}
	if _, _, err := validate(inv.Input); err != nil {
		return err
	}
	return a.resolveConversation(ctx, inv.Request)
}

// Run drafts one post.
func (a *Agent) Run(ctx context.Context, inv *agent.Invocation) (domain.Payload, error) {
	in, platform, err := validate(inv.Input)
	if err != nil {
		return nil, err
	}
	limit := platformLimits[platform]

	docs, err := a.gatherer.Gather(ctx, in.Topic, a.opts.ResultLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to gather knowledge: %w", err)
	}

	prompt := buildPrompt(in, platform, limit, docs)
	prompt.Temperature = a.opts.Temperature
	completion, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate draft: %w", err)
	}
	a.opts.Logger.Debug("draft generated",
		"execution_id", inv.ExecutionID, "model", completion.Model,
		"input_tokens", completion.InputTokens, "output_tokens", completion.OutputTokens)

	out := &domain.NovaOutput{
		Draft:    truncate(completion.Text, limit),
		Platform: platform,
	}
	for _, doc := range docs {
		source := doc.URL
		if source == "" {
			source = doc.Title
		}
		out.Sources = append(out.Sources, source)
	}

	if err := a.persist(ctx, inv.Request, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func validate(input domain.Payload) (*domain.NovaInput, string, error) {
	in, ok := input.(*domain.NovaInput)
	if !ok {
		return nil, "", fmt.Errorf("nova: unexpected input %T", input)
	}
	if err := in.Validate(); err != nil {
		return nil, "", err
	}
	platform := strings.ToLower(strings.TrimSpace(in.Platform))
	if _, ok := platformLimits[platform]; !ok {
		return nil, "", &domain.ValidationError{Field: "platform", Reason: fmt.Sprintf("%q is not supported", in.Platform)}
	}
	return in, platform, nil
}

func (a *Agent) persists(req *domain.AgentRequest) bool {
	return a.conversations != nil && (req.ConversationID != "" || req.Metadata.Persist)
}

// resolveConversation checks req.ConversationID, or fills it with the user's
// active conversation when the request only asks for persistence.
func (a *Agent) resolveConversation(ctx context.Context, req *domain.AgentRequest) error {
	if req.ConversationID != "" {
		_, err := a.conversations.Resume(ctx, req.ConversationID, req.UserID)
		return err
	}
	conv, err := a.conversations.GetOrCreate(ctx, req.UserID)
	if err != nil {
		return err
	}
	req.ConversationID = conv.ID
	return nil
}

func (a *Agent) persist(ctx context.Context, req *domain.AgentRequest, in *domain.NovaInput, out *domain.NovaOutput) error {
	if !a.persists(req) {
		return nil
	}
	if err := a.resolveConversation(ctx, req); err != nil {
		return err
	}

	if _, err := a.conversations.SaveMessage(ctx, req.ConversationID, domain.RoleUser, in.Topic, ""); err != nil {
		return err
	}
	if _, err := a.conversations.SaveMessage(ctx, req.ConversationID, domain.RoleAssistant, out.Draft, domain.AgentNova); err != nil {
		return err
	}
	out.ConversationID = req.ConversationID
	return nil
}

func buildPrompt(in *domain.NovaInput, platform string, limit int, docs []knowledge.Document) llm.Prompt {
	system := fmt.Sprintf(
		"You write %s posts for a company account. Reply with the post text only, at most %d characters. "+
			"Ground claims in the reference material when it is relevant and never invent statistics.",
		platform, limit)

	var user strings.Builder
	fmt.Fprintf(&user, "Topic: %s\n", in.Topic)
	if in.Tone != "" {
		fmt.Fprintf(&user, "Tone: %s\n", in.Tone)
	}
	if in.Audience != "" {
		fmt.Fprintf(&user, "Audience: %s\n", in.Audience)
	}
	if len(docs) > 0 {
		user.WriteString("\nReference material:\n")
		for _, doc := range docs {
			fmt.Fprintf(&user, "\n## %s\n%s\n", doc.Title, doc.Content)
		}
	}
	return llm.Prompt{System: system, User: user.String(), MaxTokens: draftTokens(limit)}
}

// draftTokens caps the completion for short-form platforms. Longer limits
// leave the provider default in place.
func draftTokens(limit int) int64 {
	if limit > 1000 {
		return 0
	}
	return int64(limit/2 + 64)
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit]))
}
