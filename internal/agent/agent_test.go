// File: internal/agent/agent_test.go
package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/wayfarer-cli/api/schemas"
	"github.com/xkilldash9x/wayfarer-cli/internal/config"
	"github.com/xkilldash9x/wayfarer-cli/internal/observability"
)

func testAgentConfig() config.AgentConfig {
	return config.NewDefaultConfig().Agent
}

func pageObservation(url string) *schemas.Observation {
	return &schemas.Observation{
		URL:   url,
		Title: "Test Page",
		Space: &schemas.ActionSpace{Elements: []schemas.InteractiveElement{
			{ID: "L1", Kind: "link", Description: "a link", Selector: "/html[1]/body[1]/a[1]"},
			{ID: "I1", Kind: "input", Description: "a field", Selector: "/html[1]/body[1]/input[1]"},
		}},
	}
}

func newPassthroughEnv(obs *schemas.Observation) *MockEnvironment {
	env := new(MockEnvironment)
	env.On("Start", mock.Anything).Return(nil)
	env.On("Close", mock.Anything).Return(nil)
	env.On("Observe", mock.Anything).Return(obs, nil)
	env.On("ResolveSelector", mock.Anything, mock.Anything).Return(func(_ context.Context, action schemas.Action) schemas.Action {
		return action
	}, nil)
	env.On("Act", mock.Anything, mock.Anything).Return(obs, nil)
	env.On("Trajectory").Return([]*schemas.Observation{obs})
	return env
}

func gotoDecision(url string) *StepDecision {
	return &StepDecision{
		State:   DecisionState{NextGoal: "open " + url},
		Actions: []schemas.Action{{ID: "goto", Type: schemas.ActionGoto, Value: url}},
	}
}

func completionDecision(success bool, answer string) *StepDecision {
	return &StepDecision{Completion: &Completion{Success: success, Answer: answer}}
}

func joinedMessages(msgs []schemas.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func TestRunCompletesTask(t *testing.T) {
	obs := pageObservation("https://site.test")
	env := newPassthroughEnv(obs)
	engine := newScriptedEngine().
		respondWith(gotoDecision("https://site.test")).
		respondWith(completionDecision(true, "the answer")).
		respondWith(ValidationResult{IsValid: true, Reason: "checked"})

	a, err := New(testAgentConfig(), env, engine, observability.GetLogger())
	require.NoError(t, err)

	resp, err := a.Run(context.Background(), "find the answer", "")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "the answer", resp.Answer)
	assert.Equal(t, 3, engine.callCount())
	assert.Equal(t, 3, resp.Usage.Calls)
	require.NotEmpty(t, resp.EnvTrajectory)

	env.AssertCalled(t, "Start", mock.Anything)
	env.AssertCalled(t, "Close", mock.Anything)
}

func TestRunFoldsStartURLIntoTask(t *testing.T) {
	obs := pageObservation("https://start.test")
	env := newPassthroughEnv(obs)
	engine := newScriptedEngine().
		respondWith(completionDecision(true, "done")).
		respondWith(ValidationResult{IsValid: true})

	a, err := New(testAgentConfig(), env, engine, observability.GetLogger())
	require.NoError(t, err)

	_, err = a.Run(context.Background(), "check the docs", "https://start.test")
	require.NoError(t, err)

	first := joinedMessages(engine.callMessages(0))
	assert.Contains(t, first, "Start on 'https://start.test' and check the docs")
}

func TestInvalidActionTriggersRerunWithoutConsumingBudget(t *testing.T) {
	cfg := testAgentConfig()
	cfg.MaxSteps = 1
	cfg.MaxConsecutiveFailures = 5

	obs := pageObservation("https://site.test")
	env := newPassthroughEnv(obs)
	engine := newScriptedEngine().
		respondWith(&StepDecision{Actions: []schemas.Action{{ID: "L9", Type: schemas.ActionClick}}}).
		respondWith(completionDecision(true, "recovered")).
		respondWith(ValidationResult{IsValid: true})

	a, err := New(cfg, env, engine, observability.GetLogger())
	require.NoError(t, err)

	resp, err := a.Run(context.Background(), "do the thing", "")
	require.NoError(t, err)
	assert.True(t, resp.Success, "forced re-run must not consume the step budget")

	// The corrective message survives the context rebuild into the re-run.
	second := joinedMessages(engine.callMessages(1))
	assert.Contains(t, second, "not valid on the current page")
	assert.Contains(t, second, "goto")
}

func TestRepeatedInvalidActionsHitFailureCeiling(t *testing.T) {
	cfg := testAgentConfig()
	cfg.MaxConsecutiveFailures = 3

	obs := pageObservation("https://site.test")
	env := newPassthroughEnv(obs)
	bad := &StepDecision{Actions: []schemas.Action{{ID: "L9", Type: schemas.ActionClick}}}
	engine := newScriptedEngine().respondWith(bad).respondWith(bad).respondWith(bad)

	a, err := New(cfg, env, engine, observability.GetLogger())
	require.NoError(t, err)

	_, err = a.Run(context.Background(), "do the thing", "")
	var fatal *MaxConsecutiveFailuresError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, 3, fatal.MaxFailures)
	env.AssertCalled(t, "Close", mock.Anything)
}

func TestRaiseNeverConvertsErrorsIntoFailedResponse(t *testing.T) {
	cfg := testAgentConfig()
	cfg.MaxConsecutiveFailures = 2
	cfg = cfg.WithRaiseCondition(config.RaiseNever)

	obs := pageObservation("https://site.test")
	env := newPassthroughEnv(obs)
	bad := &StepDecision{Actions: []schemas.Action{{ID: "L9", Type: schemas.ActionClick}}}
	engine := newScriptedEngine().respondWith(bad).respondWith(bad)

	a, err := New(cfg, env, engine, observability.GetLogger())
	require.NoError(t, err)

	resp, err := a.Run(context.Background(), "do the thing", "")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Answer, "max consecutive failures")
}

func TestStepBudgetExhaustionFailsTheRun(t *testing.T) {
	cfg := testAgentConfig()
	cfg.MaxSteps = 2

	obs := pageObservation("https://site.test")
	env := newPassthroughEnv(obs)
	engine := newScriptedEngine().
		respondWith(gotoDecision("https://site.test")).
		respondWith(gotoDecision("https://site.test/next"))

	a, err := New(cfg, env, engine, observability.GetLogger())
	require.NoError(t, err)

	// Budget exhaustion is a failed response under every raise condition,
	// never an error, and the run record stays inspectable.
	resp, err := a.Run(context.Background(), "never finishes", "")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Failed to solve task in 2 steps", resp.Answer)
	assert.NotEmpty(t, resp.AgentTrajectory)
	assert.NotEmpty(t, resp.EnvTrajectory)
	assert.Equal(t, 2, resp.Usage.Calls)
}

func TestEmptyDecisionsHitFailureCeiling(t *testing.T) {
	cfg := testAgentConfig()
	cfg.MaxSteps = 2
	cfg.MaxConsecutiveFailures = 3

	obs := pageObservation("https://site.test")
	env := newPassthroughEnv(obs)
	empty := &StepDecision{}
	engine := newScriptedEngine().respondWith(empty).respondWith(empty).respondWith(empty)

	a, err := New(cfg, env, engine, observability.GetLogger())
	require.NoError(t, err)

	// An engine that keeps answering with neither actions nor a completion
	// trips the failure ceiling instead of spinning the re-run loop forever.
	_, err = a.Run(context.Background(), "do the thing", "")
	var fatal *MaxConsecutiveFailuresError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, 3, fatal.MaxFailures)
	assert.Equal(t, 3, engine.callCount())
	env.AssertCalled(t, "Close", mock.Anything)
}

func TestRerunAttemptsStayOutOfTrajectory(t *testing.T) {
	cfg := testAgentConfig()
	cfg.MaxConsecutiveFailures = 5

	obs := pageObservation("https://site.test")
	env := newPassthroughEnv(obs)
	invalid := func(id string) *StepDecision {
		return &StepDecision{Actions: []schemas.Action{{ID: id, Type: schemas.ActionClick}}}
	}
	engine := newScriptedEngine().
		respondWith(invalid("L7")).
		respondWith(invalid("L8")).
		respondWith(invalid("L9")).
		respondWith(gotoDecision("https://site.test")).
		respondWith(completionDecision(true, "done")).
		respondWith(ValidationResult{IsValid: true})

	var seen []ActionStatus
	a, err := New(cfg, env, engine, observability.GetLogger(),
		WithStepCallback(func(status ActionStatus) { seen = append(seen, status) }))
	require.NoError(t, err)

	resp, err := a.Run(context.Background(), "do the thing", "")
	require.NoError(t, err)
	assert.True(t, resp.Success)

	// The three rejected attempts are visible through the callback only.
	require.Len(t, seen, 4)
	for _, status := range seen[:3] {
		assert.False(t, status.Success)
		assert.True(t, status.ShouldRerun)
	}
	assert.True(t, seen[3].Success)

	// The trajectory keeps the one executed step and the completion
	// decision; no failure entries and no post-failure re-observation.
	steps := resp.AgentTrajectory
	require.Len(t, steps, 2)
	require.Len(t, steps[0].Results, 1)
	assert.True(t, steps[0].Results[0].Success)
	assert.Empty(t, steps[1].Results)
	env.AssertNotCalled(t, "Observe", mock.Anything)
}

func TestFailedCompletionSkipsValidator(t *testing.T) {
	obs := pageObservation("https://site.test")
	env := newPassthroughEnv(obs)
	engine := newScriptedEngine().
		respondWith(completionDecision(false, "the site is down"))

	a, err := New(testAgentConfig(), env, engine, observability.GetLogger())
	require.NoError(t, err)

	resp, err := a.Run(context.Background(), "do the thing", "")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "the site is down", resp.Answer)
	assert.Equal(t, 1, engine.callCount(), "failed completions are terminal without validation")
}

func TestRejectedCompletionContinuesTheLoop(t *testing.T) {
	obs := pageObservation("https://site.test")
	env := newPassthroughEnv(obs)
	engine := newScriptedEngine().
		respondWith(completionDecision(true, "too hasty")).
		respondWith(ValidationResult{IsValid: false, Reason: "no supporting evidence"}).
		respondWith(completionDecision(true, "now with evidence")).
		respondWith(ValidationResult{IsValid: true})

	a, err := New(testAgentConfig(), env, engine, observability.GetLogger())
	require.NoError(t, err)

	resp, err := a.Run(context.Background(), "do the thing", "")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "now with evidence", resp.Answer)

	third := joinedMessages(engine.callMessages(2))
	assert.Contains(t, third, "rejected")
	assert.Contains(t, third, "no supporting evidence")
}

func TestReasoningFailureQueuesCorrectiveAndReruns(t *testing.T) {
	obs := pageObservation("https://site.test")
	env := newPassthroughEnv(obs)
	engine := newScriptedEngine().
		failWith(&RateLimitError{Err: errors.New("429")}).
		respondWith(completionDecision(true, "recovered")).
		respondWith(ValidationResult{IsValid: true})

	a, err := New(testAgentConfig(), env, engine, observability.GetLogger())
	require.NoError(t, err)

	resp, err := a.Run(context.Background(), "do the thing", "")
	require.NoError(t, err)
	assert.True(t, resp.Success)

	second := joinedMessages(engine.callMessages(1))
	assert.Contains(t, second, "Rate limit reached")
}

func TestVaultSubstitutionAndPromptInstructions(t *testing.T) {
	obs := pageObservation("https://site.test")
	env := newPassthroughEnv(obs)

	vault := new(MockVault)
	vault.On("Instructions").Return("Use the vault placeholders for credentials.")
	vault.On("ReplacementMap").Return(map[string]string{"s3cret": "@vault.password"})
	vault.On("ContainsCredentials", mock.Anything).Return(func(action schemas.Action) bool {
		return strings.Contains(action.Value, "@vault.password")
	})
	vault.On("ReplaceCredentials", mock.Anything, mock.Anything, mock.Anything).Return(
		func(_ context.Context, action schemas.Action, _ *schemas.Observation) schemas.Action {
			action.Value = strings.ReplaceAll(action.Value, "@vault.password", "s3cret")
			return action
		}, nil)

	engine := newScriptedEngine().
		respondWith(gotoDecision("https://site.test")).
		respondWith(&StepDecision{Actions: []schemas.Action{{ID: "I1", Type: schemas.ActionFill, Value: "@vault.password"}}}).
		respondWith(completionDecision(true, "logged in")).
		respondWith(ValidationResult{IsValid: true})

	a, err := New(testAgentConfig(), env, engine, observability.GetLogger(), WithVault(vault))
	require.NoError(t, err)

	resp, err := a.Run(context.Background(), "log in", "")
	require.NoError(t, err)
	assert.True(t, resp.Success)

	first := joinedMessages(engine.callMessages(0))
	assert.Contains(t, first, "Use the vault placeholders for credentials.")

	fillReached := false
	for _, call := range env.Calls {
		if call.Method != "Act" {
			continue
		}
		action := call.Arguments.Get(1).(schemas.Action)
		if action.Type == schemas.ActionFill {
			fillReached = true
			assert.Equal(t, "s3cret", action.Value, "the environment must receive the real secret")
		}
	}
	require.True(t, fillReached, "fill action must reach the environment")
}

func TestStepCallbackFiresPerResult(t *testing.T) {
	obs := pageObservation("https://site.test")
	env := newPassthroughEnv(obs)
	engine := newScriptedEngine().
		respondWith(gotoDecision("https://site.test")).
		respondWith(completionDecision(true, "done")).
		respondWith(ValidationResult{IsValid: true})

	var seen []ActionStatus
	a, err := New(testAgentConfig(), env, engine, observability.GetLogger(),
		WithStepCallback(func(status ActionStatus) { seen = append(seen, status) }))
	require.NoError(t, err)

	_, err = a.Run(context.Background(), "do the thing", "")
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.True(t, seen[0].Success)
	assert.Equal(t, schemas.ActionGoto, seen[0].Input.Type)
}

func TestResetClearsRunState(t *testing.T) {
	obs := pageObservation("https://site.test")
	env := newPassthroughEnv(obs)
	engine := newScriptedEngine().
		respondWith(completionDecision(true, "done")).
		respondWith(ValidationResult{IsValid: true})

	a, err := New(testAgentConfig(), env, engine, observability.GetLogger())
	require.NoError(t, err)

	_, err = a.Run(context.Background(), "first task", "")
	require.NoError(t, err)

	a.Reset()
	assert.Zero(t, a.trajectory.Len())
	assert.Zero(t, a.conv.Len())
	assert.Empty(t, a.pending)
}
