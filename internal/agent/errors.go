// File: internal/agent/errors.go
package agent

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind tags a failure class for handler dispatch and message selection.
// Using a custom type ensures that only predefined constants can be used where
// an ErrorKind is expected.
type ErrorKind string

const (
	// KindRateLimit marks transient provider throttling; always recoverable.
	KindRateLimit ErrorKind = "RATE_LIMIT"
	// KindInvalidAction marks a candidate action whose ID is not in the
	// current valid action set; triggers a forced step re-run.
	KindInvalidAction ErrorKind = "INVALID_ACTION"
	// KindValidation marks a reasoning output that did not match the
	// expected structured schema.
	KindValidation ErrorKind = "VALIDATION_FAILURE"
	// KindExecution marks a failure raised by the environment action itself.
	KindExecution ErrorKind = "EXECUTION_FAILURE"
	// KindUnknown covers everything else.
	KindUnknown ErrorKind = "UNKNOWN"
)

// kinder is implemented by errors that carry their own classification tag.
type kinder interface {
	Kind() ErrorKind
}

// messenger is implemented by structured errors that distinguish the message
// shown to the reasoning engine from the one shown to a developer.
type messenger interface {
	AgentMessage() string
	DevMessage() string
}

// KindOf classifies an error by its tag, not by runtime type identity.
func KindOf(err error) ErrorKind {
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// RateLimitError indicates the reasoning provider throttled the request.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit reached: %v", e.Err)
}
func (e *RateLimitError) Unwrap() error   { return e.Err }
func (e *RateLimitError) Kind() ErrorKind { return KindRateLimit }

// InvalidActionError indicates the candidate action ID is not part of the
// action space exposed by the last valid observation.
type InvalidActionError struct {
	ActionID string
	ValidIDs []string
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("invalid action id %q: not in the current action space", e.ActionID)
}
func (e *InvalidActionError) Kind() ErrorKind { return KindInvalidAction }

// AgentMessage renders the corrective message forwarded to the reasoning
// engine so it can pick a valid action on the re-run.
func (e *InvalidActionError) AgentMessage() string {
	return fmt.Sprintf(
		"Action %q is not valid on the current page. Pick one of the valid action ids: [%s]",
		e.ActionID, strings.Join(e.ValidIDs, ", "))
}
func (e *InvalidActionError) DevMessage() string { return e.Error() }

// SchemaValidationError indicates a response that did not match the expected
// structured shape.
type SchemaValidationError struct {
	Detail string
	Err    error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema validation failed: %s", e.Detail)
}
func (e *SchemaValidationError) Unwrap() error   { return e.Err }
func (e *SchemaValidationError) Kind() ErrorKind { return KindValidation }

// ExecutionError wraps a failure raised while performing an environment
// action. AgentMsg is phrased for the reasoning engine; DevMsg carries the
// underlying detail.
type ExecutionError struct {
	AgentMsg string
	DevMsg   string
	Err      error
}

func (e *ExecutionError) Error() string        { return e.DevMsg }
func (e *ExecutionError) Unwrap() error        { return e.Err }
func (e *ExecutionError) Kind() ErrorKind      { return KindExecution }
func (e *ExecutionError) AgentMessage() string { return e.AgentMsg }
func (e *ExecutionError) DevMessage() string   { return e.DevMsg }

// NewExecutionError builds an ExecutionError whose both messages carry the
// given summary plus the underlying error detail.
func NewExecutionError(summary string, err error) *ExecutionError {
	msg := fmt.Sprintf("%s: %v", summary, err)
	return &ExecutionError{AgentMsg: msg, DevMsg: msg, Err: err}
}

// StepExecutionError is returned by the executor for a recoverable failure
// when the raise-on-failure policy is active.
type StepExecutionError struct {
	Message string
	Err     error
}

func (e *StepExecutionError) Error() string { return e.Message }
func (e *StepExecutionError) Unwrap() error { return e.Err }

// MaxConsecutiveFailuresError is fatal: it is returned unconditionally once
// the configured consecutive-failure ceiling is hit, regardless of the raise
// policy, and always ends the run.
type MaxConsecutiveFailuresError struct {
	MaxFailures int
	Err         error
}

func (e *MaxConsecutiveFailuresError) Error() string {
	return fmt.Sprintf("max consecutive failures reached in a single step: %d", e.MaxFailures)
}
func (e *MaxConsecutiveFailuresError) Unwrap() error { return e.Err }
