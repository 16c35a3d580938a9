package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/agents/internal/domain"
	"github.com/xiaot623/gogo/agents/internal/repository"
)

// GetExecution retrieves one execution record.
// GET /v1/executions/:execution_id
func (h *Handler) GetExecution(c echo.Context) error {
	rec, err := h.executions.GetExecution(c.Request().Context(), c.Param("execution_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if rec == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "execution not found"})
	}
	return c.JSON(http.StatusOK, rec)
}

// ListExecutions lists execution records, newest first.
// GET /v1/executions?agent_id=&conversation_id=&status=&limit=
func (h *Handler) ListExecutions(c echo.Context) error {
	filter := repository.ExecutionFilter{
		AgentID:        c.QueryParam("agent_id"),
		ConversationID: c.QueryParam("conversation_id"),
		Status:         domain.ExecutionStatus(c.QueryParam("status")),
		Limit:          queryLimit(c, 50),
	}
	switch filter.Status {
	case "", domain.ExecutionStatusRunning, domain.ExecutionStatusSuccess, domain.ExecutionStatusError:
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid status"})
	}

	records, err := h.executions.ListExecutions(c.Request().Context(), filter)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if records == nil {
		records = []domain.ExecutionRecord{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"executions": records,
	})
}

// GetConversationMessages retrieves messages of a conversation.
// GET /v1/conversations/:conversation_id/messages
func (h *Handler) GetConversationMessages(c echo.Context) error {
	limit := queryLimit(c, 50)
	// One extra row tells whether another page exists.
	messages, err := h.messages.Messages(c.Request().Context(), c.Param("conversation_id"), limit+1)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
		"has_more": hasMore,
	})
}

func queryLimit(c echo.Context, def int) int {
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			return val
		}
	}
	return def
}
