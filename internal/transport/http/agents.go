package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/agents/internal/domain"
)

// Probe reports whether an agent is up and configured.
// GET /agents/:agentId
func (h *Handler) Probe(c echo.Context) error {
	agentID := c.Param("agentId")
	a, ok := h.registry.Get(agentID)
	if !ok {
		return contractError(c, http.StatusNotFound, agentID, fmt.Sprintf("%s: %s", domain.ErrUnknownAgent, agentID))
	}
	return c.JSON(http.StatusOK, h.registry.Probe(a))
}

// Preflight answers CORS preflight requests.
// OPTIONS /agents/:agentId
func (h *Handler) Preflight(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// MethodNotAllowed rejects verbs the agent endpoint does not serve.
func (h *Handler) MethodNotAllowed(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderAllow, "GET, POST, OPTIONS")
	msg := fmt.Sprintf("method %s not allowed", c.Request().Method)
	return contractError(c, http.StatusMethodNotAllowed, c.Param("agentId"), msg)
}

// Invoke runs an agent.
// POST /agents/:agentId
func (h *Handler) Invoke(c echo.Context) error {
	agentID := c.Param("agentId")
	a, ok := h.registry.Get(agentID)
	if !ok {
		return contractError(c, http.StatusNotFound, agentID, fmt.Sprintf("%s: %s", domain.ErrUnknownAgent, agentID))
	}

	var req domain.AgentRequest
	if err := c.Bind(&req); err != nil {
		return contractError(c, http.StatusBadRequest, agentID, "invalid request body: "+bindMessage(err))
	}
	if req.Metadata.Trigger == "" {
		req.Metadata.Trigger = domain.TriggerAPI
	}
	if req.Metadata.Timestamp == "" {
		req.Metadata.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	resp := h.runner.Invoke(c.Request().Context(), a, &req)
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, resp)
}

func contractError(c echo.Context, status int, agentID, message string) error {
	return c.JSON(status, domain.NewErrorResponse(agentID, "", message))
}

func bindMessage(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Internal != nil {
			return he.Internal.Error()
		}
		return fmt.Sprint(he.Message)
	}
	return err.Error()
}
