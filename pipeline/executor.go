package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcouto/reparcel/execution"
)

// ErrStageTimeout is reported in a StageOutcome when a collaborator does not
// answer within the configured stage timeout.
var ErrStageTimeout = errors.New("stage timed out")

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithStageLoggers sets a factory for per-stage loggers, letting callers
// route each stage's log lines to a capture scope. If not provided, the
// base logger is used with a stage attribute.
func WithStageLoggers(factory func(execution.Stage) *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.loggerFor = factory
	}
}

// Executor runs stage collaborators under a per-stage timeout, recovering
// panics and timing every invocation. It never retries; retry policy belongs
// to the collaborators themselves.
type Executor struct {
	timeouts  map[execution.Stage]time.Duration
	loggerFor func(execution.Stage) *slog.Logger
}

// NewExecutor creates an executor with the given per-stage timeouts.
// A missing or zero timeout means the stage runs unbounded.
func NewExecutor(timeouts map[execution.Stage]time.Duration, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		timeouts: timeouts,
		loggerFor: func(stage execution.Stage) *slog.Logger {
			return logger.With("stage", string(stage))
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run invokes fn and normalizes whatever happens into a StageOutcome:
// collaborator-reported failure, transport error, panic, or timeout all
// come back as Success=false with the reason in Error. The collaborator
// goroutine is handed a context that expires at the stage deadline, so a
// well-behaved fn stops doing work shortly after Run gives up on it.
func (e *Executor) Run(ctx context.Context, stage execution.Stage, fn StageFn, input map[string]any) StageOutcome {
	logger := e.loggerFor(stage)
	timeout := e.timeouts[stage]

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger.Info("stage started", "timeout", timeout.String())
	start := time.Now()

	resultCh := make(chan Result, 1)
	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("stage panicked: %v", r)
			}
		}()
		res, err := fn(runCtx, input)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- res
	}()

	outcome := StageOutcome{StartedAt: start}
	select {
	case res := <-resultCh:
		outcome.Success = res.Success
		outcome.Data = res.Data
		outcome.Message = res.Message
		outcome.Error = res.Error
		if !res.Success && res.Error == "" {
			outcome.Error = "collaborator reported failure without detail"
		}
	case err := <-errCh:
		outcome.Error = err.Error()
	case <-runCtx.Done():
		if ctx.Err() != nil {
			outcome.Error = ctx.Err().Error()
		} else {
			outcome.Error = ErrStageTimeout.Error()
		}
	}
	outcome.Duration = time.Since(start)

	if outcome.Success {
		logger.Info("stage completed", "duration_ms", outcome.Duration.Milliseconds(), "message", outcome.Message)
	} else {
		logger.Error("stage failed", "duration_ms", outcome.Duration.Milliseconds(), "error", outcome.Error)
	}
	return outcome
}
