// File: internal/agent/mocks_test.go
package agent

import (
	"context"
	"sync"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/wayfarer-cli/api/schemas"
)

// -- Environment Mock --

// MockEnvironment mocks the schemas.Environment interface.
type MockEnvironment struct {
	mock.Mock
}

func (m *MockEnvironment) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockEnvironment) Observe(ctx context.Context) (*schemas.Observation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.Observation), args.Error(1)
}

func (m *MockEnvironment) Act(ctx context.Context, action schemas.Action) (*schemas.Observation, error) {
	args := m.Called(ctx, action)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.Observation), args.Error(1)
}

func (m *MockEnvironment) ResolveSelector(ctx context.Context, action schemas.Action) (schemas.Action, error) {
	args := m.Called(ctx, action)
	if fn, ok := args.Get(0).(func(context.Context, schemas.Action) schemas.Action); ok {
		return fn(ctx, action), args.Error(1)
	}
	return args.Get(0).(schemas.Action), args.Error(1)
}

func (m *MockEnvironment) Trajectory() []*schemas.Observation {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]*schemas.Observation)
}

func (m *MockEnvironment) Reset(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockEnvironment) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// -- LLM Engine Mock --

// scriptedEngine replays a fixed sequence of responses, recording every
// message list it was called with. A response is either a payload to
// unmarshal into the output or an error to return.
type scriptedEngine struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     [][]schemas.Message
	usage     schemas.UsageSummary
}

type scriptedResponse struct {
	payload any
	err     error
}

func newScriptedEngine() *scriptedEngine {
	return &scriptedEngine{}
}

func (e *scriptedEngine) respondWith(payload any) *scriptedEngine {
	e.responses = append(e.responses, scriptedResponse{payload: payload})
	return e
}

func (e *scriptedEngine) failWith(err error) *scriptedEngine {
	e.responses = append(e.responses, scriptedResponse{err: err})
	return e
}

func (e *scriptedEngine) StructuredCompletion(_ context.Context, messages []schemas.Message, out any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := make([]schemas.Message, len(messages))
	copy(snapshot, messages)
	e.calls = append(e.calls, snapshot)
	e.usage.Calls++

	if len(e.responses) == 0 {
		return &SchemaValidationError{Detail: "scripted engine exhausted"}
	}
	next := e.responses[0]
	e.responses = e.responses[1:]
	if next.err != nil {
		return next.err
	}
	payload, err := json.Marshal(next.payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, out)
}

func (e *scriptedEngine) Usage() schemas.UsageSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.usage
}

// callCount returns how many times the engine was queried.
func (e *scriptedEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// callMessages returns the messages of the i-th call.
func (e *scriptedEngine) callMessages(i int) []schemas.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[i]
}

// -- Credential Vault Mock --

// MockVault mocks the schemas.CredentialVault interface.
type MockVault struct {
	mock.Mock
}

func (m *MockVault) ContainsCredentials(action schemas.Action) bool {
	args := m.Called(action)
	if fn, ok := args.Get(0).(func(schemas.Action) bool); ok {
		return fn(action)
	}
	return args.Bool(0)
}

func (m *MockVault) ReplaceCredentials(ctx context.Context, action schemas.Action, obs *schemas.Observation) (schemas.Action, error) {
	args := m.Called(ctx, action, obs)
	if fn, ok := args.Get(0).(func(context.Context, schemas.Action, *schemas.Observation) schemas.Action); ok {
		return fn(ctx, action, obs), args.Error(1)
	}
	return args.Get(0).(schemas.Action), args.Error(1)
}

func (m *MockVault) ReplacementMap() map[string]string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(map[string]string)
}

func (m *MockVault) Instructions() string {
	args := m.Called()
	return args.String(0)
}
