// File: internal/agent/executor.go
package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ExecutionStatus is the uniform result envelope for one attempted operation.
// It is created once per execution attempt and never mutated afterwards.
// Success implies Output is present; ShouldRerun is only ever set on failure.
type ExecutionStatus[S, T any] struct {
	Input   S
	Output  *T
	Success bool
	Message string
	// ShouldRerun signals the step loop to rebuild context and re-query the
	// reasoning engine instead of recording a terminal failure.
	ShouldRerun bool
}

// Get returns the output or an error when the execution did not succeed.
func (s ExecutionStatus[S, T]) Get() (T, error) {
	if !s.Success || s.Output == nil {
		var zero T
		return zero, fmt.Errorf("execution failed with message: %s", s.Message)
	}
	return *s.Output, nil
}

// Operation is one fallible asynchronous operation the executor wraps.
type Operation[S, T any] func(ctx context.Context, input S) (T, error)

// Precheck validates an input before the operation runs. A precheck error is
// handled identically to an operation failure.
type Precheck[S any] func(ctx context.Context, input S) error

// FailureHandler reacts to a classified failure. Handlers are side-effect
// only; they cannot alter the outcome of the execution.
type FailureHandler func(err error)

// SafeExecutor wraps one fallible operation, guaranteeing a uniform result
// and a bounded tolerance for consecutive failures. An executor instance is
// owned by a single agent run and is not safe for concurrent use.
type SafeExecutor[S, T any] struct {
	op              Operation[S, T]
	precheck        Precheck[S]
	failureHandlers map[ErrorKind]FailureHandler

	maxConsecutiveFailures int
	consecutiveFailures    int
	raiseOnFailure         bool

	logger *zap.Logger
}

// ExecutorOption customizes a SafeExecutor at construction time.
type ExecutorOption[S, T any] func(*SafeExecutor[S, T])

// WithPrecheck installs a validation function that runs before the operation.
func WithPrecheck[S, T any](pc Precheck[S]) ExecutorOption[S, T] {
	return func(e *SafeExecutor[S, T]) { e.precheck = pc }
}

// WithFailureHandler registers a side-effect handler for one failure kind.
func WithFailureHandler[S, T any](kind ErrorKind, h FailureHandler) ExecutorOption[S, T] {
	return func(e *SafeExecutor[S, T]) { e.failureHandlers[kind] = h }
}

// WithRaiseOnFailure makes recoverable failures return a StepExecutionError
// instead of a non-raising status.
func WithRaiseOnFailure[S, T any](raise bool) ExecutorOption[S, T] {
	return func(e *SafeExecutor[S, T]) { e.raiseOnFailure = raise }
}

// NewSafeExecutor builds an executor around op with the given
// consecutive-failure ceiling.
func NewSafeExecutor[S, T any](
	logger *zap.Logger,
	op Operation[S, T],
	maxConsecutiveFailures int,
	opts ...ExecutorOption[S, T],
) *SafeExecutor[S, T] {
	e := &SafeExecutor[S, T]{
		op:                     op,
		failureHandlers:        make(map[ErrorKind]FailureHandler),
		maxConsecutiveFailures: maxConsecutiveFailures,
		logger:                 logger.Named("safe_executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reset zeroes the consecutive-failure counter. Call at the start of each
// fresh task run.
func (e *SafeExecutor[S, T]) Reset() {
	e.consecutiveFailures = 0
}

// ConsecutiveFailures returns the current failure streak.
func (e *SafeExecutor[S, T]) ConsecutiveFailures() int {
	return e.consecutiveFailures
}

// Execute runs the wrapped operation against one input.
//
// On success the failure counter resets and a successful status is returned.
// On failure the error is classified, the matching failure handler (if any)
// fires, and one of three things happens: the fatal
// MaxConsecutiveFailuresError is returned once the ceiling is hit (always,
// regardless of the raise policy); a StepExecutionError is returned when
// raiseOnFailure is set; otherwise a non-raising failed status is returned
// with ShouldRerun set while the streak is within the ceiling.
func (e *SafeExecutor[S, T]) Execute(ctx context.Context, input S) (ExecutionStatus[S, T], error) {
	out, err := e.run(ctx, input)
	if err == nil {
		e.consecutiveFailures = 0
		return ExecutionStatus[S, T]{
			Input:   input,
			Output:  &out,
			Success: true,
			Message: fmt.Sprintf("Successfully executed action %v", input),
		}, nil
	}
	return e.onFailure(input, err)
}

func (e *SafeExecutor[S, T]) run(ctx context.Context, input S) (T, error) {
	if e.precheck != nil {
		if err := e.precheck(ctx, input); err != nil {
			var zero T
			return zero, err
		}
	}
	return e.op(ctx, input)
}

func (e *SafeExecutor[S, T]) onFailure(input S, err error) (ExecutionStatus[S, T], error) {
	e.consecutiveFailures++

	kind := KindOf(err)
	msg := e.classifyMessage(kind, err)

	if handler, ok := e.failureHandlers[kind]; ok {
		handler(err)
	}

	e.logger.Warn("Operation failed",
		zap.String("kind", string(kind)),
		zap.Int("consecutive_failures", e.consecutiveFailures),
		zap.Error(err),
	)

	if e.consecutiveFailures >= e.maxConsecutiveFailures {
		// Fatal. Never converted into a status, whatever the raise policy.
		return ExecutionStatus[S, T]{}, &MaxConsecutiveFailuresError{
			MaxFailures: e.maxConsecutiveFailures,
			Err:         err,
		}
	}
	if e.raiseOnFailure {
		return ExecutionStatus[S, T]{}, &StepExecutionError{Message: msg, Err: err}
	}
	return ExecutionStatus[S, T]{
		Input:   input,
		Success: false,
		Message: msg,
		// Still below the ceiling on this branch, so a re-run is allowed.
		ShouldRerun: true,
	}, nil
}

// classifyMessage selects the failure message per the error taxonomy.
func (e *SafeExecutor[S, T]) classifyMessage(kind ErrorKind, err error) string {
	switch kind {
	case KindRateLimit:
		return "Rate limit reached. Waiting before retry."
	case KindValidation:
		return fmt.Sprintf(
			"JSON schema validation error: the output format is invalid. "+
				"Please ensure your response follows the expected schema. Details: %v", err)
	default:
		var m messenger
		if errors.As(err, &m) {
			if e.raiseOnFailure {
				return m.DevMessage()
			}
			return m.AgentMessage()
		}
		return fmt.Sprintf("An unexpected error occurred: %v", err)
	}
}
