package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/agents/internal/domain"
	"github.com/xiaot623/gogo/agents/internal/execlog"
	"github.com/xiaot623/gogo/agents/internal/repository"
	"github.com/xiaot623/gogo/agents/tests/helpers"
)

type stubAgent struct {
	id  string
	env []string
	run func(ctx context.Context, inv *Invocation) (domain.Payload, error)
}

func (s *stubAgent) ID() string            { return s.id }
func (s *stubAgent) RequiredEnv() []string { return s.env }
func (s *stubAgent) Run(ctx context.Context, inv *Invocation) (domain.Payload, error) {
	return s.run(ctx, inv)
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []domain.ExecutionStatus
	failures []string
}

func (o *recordingObserver) ObserveInvocation(_ string, status domain.ExecutionStatus, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func (o *recordingObserver) LogWriteFailed(_, op string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, op)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type preparingAgent struct {
	*stubAgent
	prepare func(ctx context.Context, inv *Invocation) error
}

func (p *preparingAgent) Prepare(ctx context.Context, inv *Invocation) error {
	return p.prepare(ctx, inv)
}

func novaRequest() *domain.AgentRequest {
	return &domain.AgentRequest{
		UserID:   "u1",
		Input:    json.RawMessage(`{"topic":"pricing","platform":"linkedin"}`),
		Metadata: domain.RequestMetadata{Trigger: domain.TriggerAPI, Timestamp: "2024-01-01T00:00:00Z"},
	}
}

func assertEnvelope(t *testing.T, resp *domain.AgentResponse) {
	t.Helper()
	if resp.Success {
		assert.NotNil(t, resp.Output)
		assert.Nil(t, resp.Error)
	} else {
		assert.Nil(t, resp.Output)
		require.NotNil(t, resp.Error)
	}
}

func TestInvokeSuccessRecordsExecution(t *testing.T) {
	db := helpers.NewTestSQLiteStore(t)
	observer := &recordingObserver{}
	runner := NewRunner(execlog.New(db), observer, quietLogger(), 0)

	agent := &stubAgent{id: domain.AgentNova, run: func(ctx context.Context, inv *Invocation) (domain.Payload, error) {
		assert.NotEmpty(t, inv.ExecutionID)
		assert.Equal(t, &domain.NovaInput{Topic: "pricing", Platform: "linkedin"}, inv.Input)
		return &domain.NovaOutput{Draft: "hello"}, nil
	}}
	resp := runner.Invoke(context.Background(), agent, novaRequest())
	assertEnvelope(t, resp)
	require.True(t, resp.Success)
	assert.Equal(t, "hello", resp.Output.(*domain.NovaOutput).Draft)
	assert.Equal(t, domain.AgentNova, resp.Metadata.AgentID)
	require.NotEmpty(t, resp.Metadata.ExecutionID)

	rec, err := db.GetExecution(context.Background(), resp.Metadata.ExecutionID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.ExecutionStatusSuccess, rec.Status)
	assert.JSONEq(t, `{"draft":"hello"}`, string(rec.Output))
	assert.JSONEq(t, `{"topic":"pricing","platform":"linkedin"}`, string(rec.Input))
	assert.GreaterOrEqual(t, rec.DurationMs, int64(0))
	assert.Equal(t, []domain.ExecutionStatus{domain.ExecutionStatusSuccess}, observer.statuses)
}

func TestInvokeFailureRecordsSingleErrorExecution(t *testing.T) {
	db := helpers.NewTestSQLiteStore(t)
	runner := NewRunner(execlog.New(db), nil, quietLogger(), 0)

	agent := &stubAgent{id: domain.AgentNova, run: func(context.Context, *Invocation) (domain.Payload, error) {
		return nil, errors.New("rate limited")
	}}
	resp := runner.Invoke(context.Background(), agent, novaRequest())
	assertEnvelope(t, resp)
	assert.False(t, resp.Success)
	assert.Equal(t, "rate limited", *resp.Error)

	records, err := db.ListExecutions(context.Background(), repository.ExecutionFilter{AgentID: domain.AgentNova})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.ExecutionStatusError, records[0].Status)
	assert.Equal(t, "rate limited", records[0].ErrorMessage)
	assert.Empty(t, records[0].Output)
}

func TestInvokeSucceedsWhenStoreIsDown(t *testing.T) {
	store := helpers.NewRecordingStore(helpers.NewTestSQLiteStore(t))
	store.FailWrites = true
	observer := &recordingObserver{}
	runner := NewRunner(execlog.New(store), observer, quietLogger(), 0)

	agent := &stubAgent{id: domain.AgentNova, run: func(context.Context, *Invocation) (domain.Payload, error) {
		return &domain.NovaOutput{Draft: "hello"}, nil
	}}
	resp := runner.Invoke(context.Background(), agent, novaRequest())
	assertEnvelope(t, resp)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Metadata.ExecutionID)
	// Complete is a no-op without an execution id.
	assert.Equal(t, 1, store.Writes())
	assert.Equal(t, []string{"start"}, observer.failures)
}

func TestInvokeRecoversPanic(t *testing.T) {
	db := helpers.NewTestSQLiteStore(t)
	runner := NewRunner(execlog.New(db), nil, quietLogger(), 0)

	agent := &stubAgent{id: domain.AgentIris, run: func(context.Context, *Invocation) (domain.Payload, error) {
		panic("boom")
	}}

	resp := runner.Invoke(context.Background(), agent, &domain.AgentRequest{UserID: "u1"})
	assertEnvelope(t, resp)
	assert.False(t, resp.Success)
	assert.Contains(t, *resp.Error, "boom")

	rec, err := db.GetExecution(context.Background(), resp.Metadata.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusError, rec.Status)
}

func TestInvokeTimeoutIsFailure(t *testing.T) {
	db := helpers.NewTestSQLiteStore(t)
	runner := NewRunner(execlog.New(db), nil, quietLogger(), 20*time.Millisecond)

	agent := &stubAgent{id: domain.AgentNova, run: func(ctx context.Context, _ *Invocation) (domain.Payload, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	resp := runner.Invoke(context.Background(), agent, novaRequest())
	assertEnvelope(t, resp)
	assert.False(t, resp.Success)
	assert.Contains(t, *resp.Error, "timed out")

	rec, err := db.GetExecution(context.Background(), resp.Metadata.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusError, rec.Status)
}

func TestInvokeNilOutputIsFailure(t *testing.T) {
	runner := NewRunner(execlog.New(helpers.NewTestSQLiteStore(t)), nil, quietLogger(), 0)

	agent := &stubAgent{id: domain.AgentNova, run: func(context.Context, *Invocation) (domain.Payload, error) {
		return nil, nil
	}}
	resp := runner.Invoke(context.Background(), agent, novaRequest())
	assertEnvelope(t, resp)
	assert.False(t, resp.Success)
}

func TestInvokeLogsAfterRequestCancelled(t *testing.T) {
	db := helpers.NewTestSQLiteStore(t)
	runner := NewRunner(execlog.New(db), nil, quietLogger(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	agent := &stubAgent{id: domain.AgentNova, run: func(context.Context, *Invocation) (domain.Payload, error) {
		cancel()
		return &domain.NovaOutput{Draft: "late"}, nil
	}}
	resp := runner.Invoke(ctx, agent, novaRequest())
	require.True(t, resp.Success)

	rec, err := db.GetExecution(context.Background(), resp.Metadata.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusSuccess, rec.Status)
}

func TestInvokeMalformedInputRecordsError(t *testing.T) {
	db := helpers.NewTestSQLiteStore(t)
	runner := NewRunner(execlog.New(db), nil, quietLogger(), 0)

	called := false
	agent := &stubAgent{id: domain.AgentNova, run: func(context.Context, *Invocation) (domain.Payload, error) {
		called = true
		return &domain.NovaOutput{Draft: "hello"}, nil
	}}
	req := novaRequest()
	req.Input = json.RawMessage(`{"topic":123,"platform":"linkedin"}`)

	resp := runner.Invoke(context.Background(), agent, req)
	assertEnvelope(t, resp)
	assert.False(t, resp.Success)
	assert.Equal(t, "topic must be a string (got number)", *resp.Error)
	assert.False(t, called)

	records, err := db.ListExecutions(context.Background(), repository.ExecutionFilter{AgentID: domain.AgentNova})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.ExecutionStatusError, records[0].Status)
	assert.JSONEq(t, `{"topic":123,"platform":"linkedin"}`, string(records[0].Input))
}

func TestInvokePrepareResolvesConversationBeforeRecord(t *testing.T) {
	db := helpers.NewTestSQLiteStore(t)
	runner := NewRunner(execlog.New(db), nil, quietLogger(), 0)

	agent := &preparingAgent{
		stubAgent: &stubAgent{id: domain.AgentNova, run: func(_ context.Context, inv *Invocation) (domain.Payload, error) {
			return &domain.NovaOutput{Draft: "hello", ConversationID: inv.Request.ConversationID}, nil
		}},
		prepare: func(_ context.Context, inv *Invocation) error {
			require.IsType(t, &domain.NovaInput{}, inv.Input)
			inv.Request.ConversationID = "conv-1"
			return nil
		},
	}

	resp := runner.Invoke(context.Background(), agent, novaRequest())
	require.True(t, resp.Success)

	rec, err := db.GetExecution(context.Background(), resp.Metadata.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "conv-1", rec.ConversationID)
}

func TestInvokePrepareFailureSkipsRun(t *testing.T) {
	db := helpers.NewTestSQLiteStore(t)
	runner := NewRunner(execlog.New(db), nil, quietLogger(), 0)

	agent := &preparingAgent{
		stubAgent: &stubAgent{id: domain.AgentNova, run: func(context.Context, *Invocation) (domain.Payload, error) {
			t.Fatal("run must not be called")
			return nil, nil
		}},
		prepare: func(context.Context, *Invocation) error {
			return &domain.ValidationError{Field: "conversationId", Reason: `"c9" was not found`}
		},
	}

	resp := runner.Invoke(context.Background(), agent, novaRequest())
	assertEnvelope(t, resp)
	assert.False(t, resp.Success)

	rec, err := db.GetExecution(context.Background(), resp.Metadata.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusError, rec.Status)
	assert.Equal(t, `conversationId "c9" was not found`, rec.ErrorMessage)
}
