// Package agent drives the canonical invocation flow shared by every agent.
package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/xiaot623/gogo/agents/internal/domain"
)

// Agent is one HTTP-triggered function.
type Agent interface {
	// ID is the agent identifier; it keys the payload variant and the route.
	ID() string
	// RequiredEnv names the configuration the agent needs to do real work.
	RequiredEnv() []string
	// Run executes the domain logic. A nil output with a nil error is a failure.
	Run(ctx context.Context, inv *Invocation) (domain.Payload, error)
}

// Preparer is implemented by agents that resolve request state before the
// execution is recorded. Prepare may fill in Request.ConversationID; its
// error fails the invocation without calling Run.
type Preparer interface {
	Prepare(ctx context.Context, inv *Invocation) error
}

// Invocation is what an agent receives for one request.
type Invocation struct {
	Request     *domain.AgentRequest
	Input       domain.Payload
	ExecutionID string
}

// Registry holds the agents served by this process.
type Registry struct {
	agents  map[string]Agent
	present func(name string) bool
}

// NewRegistry creates an empty registry. present reports whether a named
// configuration value is set.
func NewRegistry(present func(name string) bool) *Registry {
	if present == nil {
		present = func(string) bool { return false }
	}
	return &Registry{agents: make(map[string]Agent), present: present}
}

// Register adds an agent. Its id must name a known payload variant.
func (r *Registry) Register(a Agent) error {
	id := a.ID()
	if !domain.KnownAgent(id) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownAgent, id)
	}
	if _, exists := r.agents[id]; exists {
		return fmt.Errorf("agent %s already registered", id)
	}
	r.agents[id] = a
	return nil
}

// Get looks up an agent by id.
func (r *Registry) Get(id string) (Agent, bool) {
	a, ok := r.agents[id]
	return a, ok
}

// IDs returns the registered agent ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Configured reports whether every variable the agent requires is present.
func (r *Registry) Configured(a Agent) bool {
	for _, name := range a.RequiredEnv() {
		if !r.present(name) {
			return false
		}
	}
	return true
}

// Probe builds the liveness response of an agent.
func (r *Registry) Probe(a Agent) domain.ProbeResponse {
	return domain.ProbeResponse{
		AgentID:                a.ID(),
		Status:                 "running",
		RequiredEnvVarsPresent: r.Configured(a),
	}
}
