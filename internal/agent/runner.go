package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xiaot623/gogo/agents/internal/domain"
)

// ExecutionLogger records the lifecycle of an invocation.
type ExecutionLogger interface {
	Start(ctx context.Context, conversationID, agentID string, input any) (string, error)
	Complete(ctx context.Context, executionID string, output any, durationMs int64) error
	Fail(ctx context.Context, executionID, errorMessage string, durationMs int64) error
}

// Observer receives invocation metrics.
type Observer interface {
	ObserveInvocation(agentID string, status domain.ExecutionStatus, elapsed time.Duration)
	LogWriteFailed(agentID, op string)
}

type nopObserver struct{}

func (nopObserver) ObserveInvocation(string, domain.ExecutionStatus, time.Duration) {}
func (nopObserver) LogWriteFailed(string, string)                                 {}

// Runner invokes agents inside the logging envelope.
type Runner struct {
	log      ExecutionLogger
	observer Observer
	logger   *slog.Logger
	timeout  time.Duration
}

// NewRunner creates a runner. observer and logger may be nil; a zero timeout
// disables the per-invocation deadline.
func NewRunner(log ExecutionLogger, observer Observer, logger *slog.Logger, timeout time.Duration) *Runner {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{log: log, observer: observer, logger: logger, timeout: timeout}
}

// Invoke runs one invocation and always returns an envelope. The returned
// envelope is never affected by execution log failures. Input that does not
// decode into the agent's payload is a failed invocation, not a transport
// error, so it is recorded like any other failure.
func (r *Runner) Invoke(ctx context.Context, a Agent, req *domain.AgentRequest) *domain.AgentResponse {
	start := time.Now()
	agentID := a.ID()

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	inv := &Invocation{Request: req}
	runErr := r.guard(a, func() error { return r.prepare(runCtx, a, inv) })

	executionID, err := r.log.Start(ctx, req.ConversationID, agentID, req.Input)
	r.discard(agentID, "start", err)
	inv.ExecutionID = executionID

	var output domain.Payload
	if runErr == nil {
		runErr = r.guard(a, func() (err error) {
			output, err = r.run(runCtx, a, inv)
			return err
		})
	}
	elapsed := time.Since(start)

	// The envelope outlives a cancelled request context.
	logCtx := context.WithoutCancel(ctx)

	if runErr != nil {
		r.discard(agentID, "fail", r.log.Fail(logCtx, executionID, runErr.Error(), elapsed.Milliseconds()))
		r.observer.ObserveInvocation(agentID, domain.ExecutionStatusError, elapsed)
		r.logger.Info("agent invocation failed",
			"agent_id", agentID, "execution_id", executionID, "duration_ms", elapsed.Milliseconds(), "error", runErr)
		return domain.NewErrorResponse(agentID, executionID, runErr.Error())
	}

	r.discard(agentID, "complete", r.log.Complete(logCtx, executionID, output, elapsed.Milliseconds()))
	r.observer.ObserveInvocation(agentID, domain.ExecutionStatusSuccess, elapsed)
	r.logger.Info("agent invocation succeeded",
		"agent_id", agentID, "execution_id", executionID, "duration_ms", elapsed.Milliseconds())
	return domain.NewSuccessResponse(agentID, executionID, output)
}

// prepare decodes the input and lets the agent resolve request state before
// the execution is recorded.
func (r *Runner) prepare(ctx context.Context, a Agent, inv *Invocation) error {
	input, err := domain.DecodeInput(a.ID(), inv.Request.Input)
	if err != nil {
		return err
	}
	inv.Input = input
	if p, ok := a.(Preparer); ok {
		return p.Prepare(ctx, inv)
	}
	return nil
}

func (r *Runner) run(ctx context.Context, a Agent, inv *Invocation) (domain.Payload, error) {
	output, err := a.Run(ctx, inv)
	if err != nil {
		return nil, err
	}
	if output == nil {
		return nil, fmt.Errorf("agent %s returned no output", a.ID())
	}
	return output, nil
}

// guard turns agent panics into errors and names deadline failures.
func (r *Runner) guard(a Agent, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("agent panicked", "agent_id", a.ID(), "panic", p)
			err = fmt.Errorf("agent %s panicked: %v", a.ID(), p)
		}
	}()

	err = fn()
	if err != nil && r.timeout > 0 && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("agent %s timed out after %s: %w", a.ID(), r.timeout, err)
	}
	return err
}

// discard is the one place execution log errors are dropped.
func (r *Runner) discard(agentID, op string, err error) {
	if err == nil {
		return
	}
	r.observer.LogWriteFailed(agentID, op)
	r.logger.Warn("execution log write failed", "agent_id", agentID, "op", op, "error", err)
}
