package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/agents/internal/agent"
	"github.com/xiaot623/gogo/agents/internal/domain"
	"github.com/xiaot623/gogo/agents/internal/repository"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Invoker runs one agent invocation inside the logging envelope.
type Invoker interface {
	Invoke(ctx context.Context, a agent.Agent, req *domain.AgentRequest) *domain.AgentResponse
}

// ExecutionReader reads the execution log.
type ExecutionReader interface {
	GetExecution(ctx context.Context, id string) (*domain.ExecutionRecord, error)
	ListExecutions(ctx context.Context, filter repository.ExecutionFilter) ([]domain.ExecutionRecord, error)
}

// MessageReader reads conversation history.
type MessageReader interface {
	Messages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
}

// Handler handles HTTP requests.
type Handler struct {
	registry   *agent.Registry
	runner     Invoker
	executions ExecutionReader
	messages   MessageReader
	metrics    http.Handler
}

// NewHandler creates a new handler. metrics may be nil.
func NewHandler(registry *agent.Registry, runner Invoker, executions ExecutionReader, messages MessageReader, metrics http.Handler) *Handler {
	return &Handler{
		registry:   registry,
		runner:     runner,
		executions: executions,
		messages:   messages,
		metrics:    metrics,
	}
}

var otherMethods = []string{
	http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead,
	http.MethodConnect, http.MethodTrace,
}

// RegisterRoutes registers the routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Agents
	e.GET("/agents/:agentId", h.Probe)
	e.OPTIONS("/agents/:agentId", h.Preflight)
	e.POST("/agents/:agentId", h.Invoke)
	e.Match(otherMethods, "/agents/:agentId", h.MethodNotAllowed)

	// Execution log and conversations
	e.GET("/v1/executions", h.ListExecutions)
	e.GET("/v1/executions/:execution_id", h.GetExecution)
	e.GET("/v1/conversations/:conversation_id/messages", h.GetConversationMessages)

	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics))
	}
	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"agents":  h.registry.IDs(),
	})
}
