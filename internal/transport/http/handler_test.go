package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/agents/internal/agent"
	"github.com/xiaot623/gogo/agents/internal/conversation"
	"github.com/xiaot623/gogo/agents/internal/domain"
	"github.com/xiaot623/gogo/agents/internal/execlog"
	"github.com/xiaot623/gogo/agents/internal/metrics"
	"github.com/xiaot623/gogo/agents/internal/repository"
	"github.com/xiaot623/gogo/agents/tests/helpers"
)

type stubAgent struct {
	id  string
	env []string
	run func(ctx context.Context, inv *agent.Invocation) (domain.Payload, error)
}

func (s *stubAgent) ID() string            { return s.id }
func (s *stubAgent) RequiredEnv() []string { return s.env }
func (s *stubAgent) Run(ctx context.Context, inv *agent.Invocation) (domain.Payload, error) {
	return s.run(ctx, inv)
}

type testEnv struct {
	e     *echo.Echo
	h     *Handler
	store *repository.SQLStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := helpers.NewTestSQLiteStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := metrics.NewRecorder()

	registry := agent.NewRegistry(func(string) bool { return false })
	require.NoError(t, registry.Register(&stubAgent{
		id:  domain.AgentNova,
		env: []string{"ANTHROPIC_API_KEY", "NOTION_API_KEY"},
		run: func(_ context.Context, inv *agent.Invocation) (domain.Payload, error) {
			in := inv.Input.(*domain.NovaInput)
			if err := in.Validate(); err != nil {
				return nil, err
			}
			return &domain.NovaOutput{Draft: "hello"}, nil
		},
	}))
	require.NoError(t, registry.Register(&stubAgent{
		id: domain.AgentIris,
		run: func(context.Context, *agent.Invocation) (domain.Payload, error) {
			return nil, errors.New("rate limited")
		},
	}))

	runner := agent.NewRunner(execlog.New(store), recorder, logger, time.Second)
	h := NewHandler(registry, runner, store, conversation.New(store), recorder.Handler())
	return &testEnv{e: NewServer(h, logger, nil), h: h, store: store}
}

func (env *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestInvokeSuccess(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/agents/nova",
		`{"userId":"u1","input":{"topic":"pricing","platform":"linkedin"},"metadata":{"trigger":"api","timestamp":"2024-01-01T00:00:00Z"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, map[string]any{"draft": "hello"}, resp["output"])
	assert.Nil(t, resp["error"])

	meta := resp["metadata"].(map[string]any)
	assert.Equal(t, "nova", meta["agentId"])
	executionID := meta["executionId"].(string)

	rec = env.do(http.MethodGet, "/v1/executions/"+executionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	stored := decodeResponse(t, rec)
	assert.Equal(t, "success", stored["status"])
	assert.Equal(t, map[string]any{"draft": "hello"}, stored["output"])
}

func TestInvokeFailureReturns500(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/agents/iris", `{"userId":"u1","input":{"name":"A","email":"a@b.co"}}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Equal(t, false, resp["success"])
	assert.Nil(t, resp["output"])
	assert.Equal(t, "rate limited", resp["error"])

	records, err := env.store.ListExecutions(context.Background(), repository.ExecutionFilter{AgentID: "iris"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.ExecutionStatusError, records[0].Status)
	assert.Equal(t, "rate limited", records[0].ErrorMessage)
}

func TestInvokeValidationFailureIsDomainFailure(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/agents/nova", `{"userId":"u1","input":{"platform":"x"}}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "topic is required", decodeResponse(t, rec)["error"])
}

func TestInvokeRejectsBadBodyWithoutLogging(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{`{not json`, `{"userId":"u1","input":{"topic":`} {
		rec := env.do(http.MethodPost, "/agents/nova", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeResponse(t, rec)
		assert.Equal(t, false, resp["success"])
		assert.NotEmpty(t, resp["error"])
	}

	records, err := env.store.ListExecutions(context.Background(), repository.ExecutionFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestInvokeMalformedInputFieldIsDomainFailure(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/agents/nova", `{"userId":"u1","input":{"topic":123,"platform":"linkedin"}}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Equal(t, false, resp["success"])
	assert.Nil(t, resp["output"])
	assert.Equal(t, "topic must be a string (got number)", resp["error"])
	executionID := resp["metadata"].(map[string]any)["executionId"]

	records, err := env.store.ListExecutions(context.Background(), repository.ExecutionFilter{AgentID: "nova"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, executionID, records[0].ID)
	assert.Equal(t, domain.ExecutionStatusError, records[0].Status)
	assert.Equal(t, "topic must be a string (got number)", records[0].ErrorMessage)
}

func TestUnknownAgent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/agents/zeus", `{"userId":"u1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, decodeResponse(t, rec)["success"])

	rec = env.do(http.MethodGet, "/agents/zeus", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProbe(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/agents/nova", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"agentId":"nova","status":"running","requiredEnvVarsPresent":false}`, rec.Body.String())

	records, err := env.store.ListExecutions(context.Background(), repository.ExecutionFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/agents/nova", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods), http.MethodPost)
}

func TestOtherMethodsNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	for _, method := range []string{http.MethodPut, http.MethodPatch, http.MethodDelete} {
		rec := env.do(method, "/agents/nova", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		resp := decodeResponse(t, rec)
		assert.Equal(t, false, resp["success"])
		assert.Nil(t, resp["output"])
		assert.Contains(t, resp["error"], method)
	}
}

func TestCORSAllowList(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(agent.NewRegistry(nil), agent.NewRunner(execlog.New(store), nil, logger, 0), store, conversation.New(store), nil)
	e := NewServer(h, logger, []string{"https://app.example"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestHealth(t *testing.T) {
	e := echo.New()
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, env.h.Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, []any{"iris", "nova"}, resp["agents"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodPost, "/agents/iris", `{"userId":"u1"}`)

	rec := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `agents_invocations_total{agent="iris",status="error"} 1`)
}
