// File: internal/agent/agent.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfarer-cli/api/schemas"
	"github.com/xkilldash9x/wayfarer-cli/internal/config"
)

// StepCallback is invoked after every recorded action result, successful or
// not. Useful for progress reporting and tests.
type StepCallback func(status ActionStatus)

// Agent drives one browsing session through the step loop: build context,
// reason, validate the candidate action, execute it, and check for
// completion. One Agent owns its environment, conversation, trajectory and
// executor for the duration of a run; instances are not safe for concurrent
// use. Run again or Reset between tasks.
type Agent struct {
	cfg    config.AgentConfig
	logger *zap.Logger

	env    schemas.Environment
	engine schemas.LLMEngine
	vault  schemas.CredentialVault

	prompts    *Prompts
	perception *Perception
	validator  *CompletionValidator
	renderer   HistoryRenderer

	conv       *Conversation
	trajectory *TrajectoryHistory
	executor   *SafeExecutor[schemas.Action, schemas.Observation]

	stepCallback StepCallback

	// pending holds corrective user messages queued by failure handlers.
	// They are appended after each context build so the conversation reset
	// cannot drop them.
	pending []string

	task string
}

// Option customizes an Agent at construction time.
type Option func(*Agent)

// WithVault installs a credential vault. Engine traffic is scrubbed through
// the vault's replacement map and actions get their placeholders substituted
// at execution time.
func WithVault(vault schemas.CredentialVault) Option {
	return func(a *Agent) { a.vault = vault }
}

// WithStepCallback installs a callback fired after every action result.
func WithStepCallback(cb StepCallback) Option {
	return func(a *Agent) { a.stepCallback = cb }
}

// New builds an agent around the given environment and reasoning engine.
func New(cfg config.AgentConfig, env schemas.Environment, engine schemas.LLMEngine, logger *zap.Logger, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config: %w", err)
	}

	a := &Agent{
		cfg:        cfg,
		logger:     logger.Named("agent"),
		env:        env,
		engine:     engine,
		perception: NewPerception(),
	}
	for _, opt := range opts {
		opt(a)
	}

	extra := ""
	if a.vault != nil {
		extra = a.vault.Instructions()
		a.engine = WithRedaction(a.engine, a.vault)
	}
	a.prompts = NewPrompts(cfg.MaxActionsPerStep, extra)

	renderer, err := NewHistoryRenderer(cfg.HistoryStrategy, a.perception, cfg.IncludeScreenshot)
	if err != nil {
		return nil, err
	}
	a.renderer = renderer

	a.validator = NewCompletionValidator(a.engine, a.logger)
	a.conv = NewConversation(cfg.MaxHistoryTokens, cfg.ReasoningModel, a.logger)
	a.trajectory = NewTrajectoryHistory(cfg.MaxErrorLength)
	a.executor = NewSafeExecutor[schemas.Action, schemas.Observation](
		a.logger,
		a.executeAction,
		cfg.MaxConsecutiveFailures,
		WithPrecheck[schemas.Action, schemas.Observation](a.precheckAction),
		WithFailureHandler[schemas.Action, schemas.Observation](KindInvalidAction, a.queueCorrective),
		WithFailureHandler[schemas.Action, schemas.Observation](KindExecution, a.queueCorrective),
		WithRaiseOnFailure[schemas.Action, schemas.Observation](cfg.RaiseCondition == config.RaiseImmediately),
	)
	return a, nil
}

// Reset clears all per-run state so the agent can serve a new task.
func (a *Agent) Reset() {
	a.conv.Reset()
	a.trajectory.Reset()
	a.executor.Reset()
	a.pending = nil
	a.task = ""
}

// Run executes one task to completion. A non-empty startURL is folded into
// the task statement. Under the "never" raise condition every error is
// converted into a failed response instead.
func (a *Agent) Run(ctx context.Context, task, startURL string) (*AgentResponse, error) {
	start := time.Now()
	resp, err := a.run(ctx, task, startURL, start)
	if err != nil && a.cfg.RaiseCondition == config.RaiseNever {
		a.logger.Warn("Run failed, converting to failed response.", zap.Error(err))
		return a.output(start, err.Error(), false), nil
	}
	return resp, err
}

func (a *Agent) run(ctx context.Context, task, startURL string, start time.Time) (*AgentResponse, error) {
	a.Reset()
	if startURL != "" {
		task = fmt.Sprintf("Start on '%s' and %s", startURL, task)
	}
	a.task = task
	a.logger.Info("Starting task.", zap.String("task", task))

	if err := a.env.Start(ctx); err != nil {
		return nil, NewExecutionError("failed to start browsing session", err)
	}
	defer func() {
		if cerr := a.env.Close(context.WithoutCancel(ctx)); cerr != nil {
			a.logger.Warn("Failed to close browsing session.", zap.Error(cerr))
		}
	}()

	for stepIdx := 0; stepIdx < a.cfg.MaxSteps; stepIdx++ {
		a.logger.Debug("Executing step.", zap.Int("step", stepIdx))
		completion, err := a.step(ctx)
		if err != nil {
			return nil, err
		}
		if completion == nil {
			continue
		}
		if !completion.Success {
			return a.output(start, completion.Answer, false), nil
		}
		verdict := a.validator.Validate(ctx, task, completion.Answer, a.trajectory.LastObservation())
		if verdict.IsValid {
			return a.output(start, completion.Answer, true), nil
		}
		a.logger.Info("Completion rejected.", zap.String("reason", verdict.Reason))
		a.trajectory.AddStep(ActionStatus{
			Input:   fallbackObserveAction(),
			Message: fmt.Sprintf("Completion rejected: %s", verdict.Reason),
		})
		a.pending = append(a.pending,
			fmt.Sprintf("Your completion was rejected: %s. Continue working on the task.", verdict.Reason))
	}
	// Budget exhaustion ends the run as a failure, never as an error. The
	// caller still gets the trajectories, messages and usage for inspection.
	msg := fmt.Sprintf("Failed to solve task in %d steps", a.cfg.MaxSteps)
	a.logger.Info("Step budget exhausted.", zap.Int("max_steps", a.cfg.MaxSteps))
	return a.output(start, msg, false), nil
}

// step performs one budgeted step. A failure with ShouldRerun set rebuilds
// the context and re-queries the engine within the same step; re-run
// attempts are bounded by the consecutive-failure ceiling, not the step
// budget, and are surfaced through queued correctives and the step callback
// rather than recorded as trajectory steps. The returned completion is
// non-nil when the engine claims the task is done.
func (a *Agent) step(ctx context.Context) (*Completion, error) {
	reasonFailures := 0
	for {
		a.buildContext()

		decision, err := a.reason(ctx)
		if err != nil {
			reasonFailures++
			status, rerr := a.reasonFailure(err, reasonFailures)
			if rerr != nil {
				return nil, rerr
			}
			a.invokeCallback(status)
			continue
		}
		if decision.Completion != nil {
			a.trajectory.AddOutput(decision)
			return decision.Completion, nil
		}

		actions := decision.ActionsWithin(a.cfg.MaxActionsPerStep)
		if len(actions) == 0 {
			// Empty decisions count against the same ceiling as reasoning
			// failures so a stuck engine cannot spin the loop forever.
			reasonFailures++
			if reasonFailures >= a.cfg.MaxConsecutiveFailures {
				return nil, &MaxConsecutiveFailuresError{
					MaxFailures: a.cfg.MaxConsecutiveFailures,
					Err:         fmt.Errorf("engine returned neither actions nor a completion"),
				}
			}
			status := ActionStatus{
				Input:       fallbackObserveAction(),
				Message:     "No actions provided. Emit at least one action or a completion.",
				ShouldRerun: true,
			}
			a.pending = append(a.pending, status.Message)
			a.invokeCallback(status)
			continue
		}
		reasonFailures = 0

		rerun := false
		recorded := false
		for _, action := range actions {
			status, err := a.executor.Execute(ctx, action)
			if err != nil {
				return nil, err
			}
			a.invokeCallback(status)
			if !status.Success && status.ShouldRerun {
				// Re-run attempts stay out of the trajectory; the failure
				// handler has already queued the corrective message.
				rerun = true
				break
			}
			if !recorded {
				a.trajectory.AddOutput(decision)
				recorded = true
			}
			a.trajectory.AddStep(status)
			if !status.Success {
				a.observeAfterFailure(ctx)
				break
			}
		}
		if !rerun {
			return nil, nil
		}
	}
}

// reason queries the engine for the next decision.
func (a *Agent) reason(ctx context.Context) (*StepDecision, error) {
	var decision StepDecision
	if err := a.engine.StructuredCompletion(ctx, a.conv.Messages(), &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

// reasonFailure converts a reasoning error into a queued corrective and a
// re-run, mirroring the executor's classification and ceiling. The ceiling
// applies here too so a permanently broken engine cannot loop forever.
func (a *Agent) reasonFailure(err error, failures int) (ActionStatus, error) {
	kind := KindOf(err)
	a.logger.Warn("Reasoning failed.",
		zap.String("kind", string(kind)),
		zap.Int("consecutive_failures", failures),
		zap.Error(err),
	)
	if failures >= a.cfg.MaxConsecutiveFailures {
		return ActionStatus{}, &MaxConsecutiveFailuresError{MaxFailures: a.cfg.MaxConsecutiveFailures, Err: err}
	}
	if a.cfg.RaiseCondition == config.RaiseImmediately {
		return ActionStatus{}, &StepExecutionError{Message: fmt.Sprintf("reasoning failed: %v", err), Err: err}
	}
	msg := ""
	switch kind {
	case KindRateLimit:
		msg = "Rate limit reached. Waiting before retry."
	case KindValidation:
		msg = fmt.Sprintf(
			"JSON schema validation error: the output format is invalid. "+
				"Please ensure your response follows the expected schema. Details: %v", err)
	default:
		msg = fmt.Sprintf("An unexpected error occurred: %v", err)
	}
	a.pending = append(a.pending, msg)
	return ActionStatus{
		Input:       fallbackObserveAction(),
		Message:     msg,
		ShouldRerun: true,
	}, nil
}

// buildContext rebuilds the conversation from scratch for the next reasoning
// call: system prompt, task, history replay, latest observation per the
// strategy, queued corrective messages, and the action request.
func (a *Agent) buildContext() {
	a.conv.Reset()
	a.conv.AddSystemMessage(a.prompts.System())
	a.conv.AddUserMessage(a.prompts.Task(a.task))

	a.renderer.Render(a.conv, a.trajectory)

	if a.renderer.AppendsLatestObservation() {
		if obs := a.trajectory.LastObservation(); obs != nil {
			var image []byte
			if a.cfg.IncludeScreenshot {
				image = obs.Screenshot
			}
			a.conv.AddUserMessageWithImage(a.perception.Perceive(obs), image)
			if obs.HasData() {
				raw := a.cfg.HistoryStrategy == config.HistoryShortObsRawData
				a.conv.AddUserMessage(a.perception.PerceiveData(obs, raw))
			}
		}
	}

	// Queued correctives go in after the rebuild so the reset cannot eat
	// them.
	for _, msg := range a.pending {
		a.conv.AddUserMessage(msg)
	}
	a.pending = nil

	a.conv.AddUserMessage(a.prompts.ActionRequest())
}

// precheckAction rejects candidate actions whose ID is outside the action
// space of the last valid observation. Before any observation exists only
// page-level actions qualify.
func (a *Agent) precheckAction(_ context.Context, action schemas.Action) error {
	obs := a.trajectory.LastObservation()
	var space *schemas.ActionSpace
	if obs != nil {
		space = obs.Space
	}
	if space.Contains(action.ID) {
		return nil
	}
	return &InvalidActionError{ActionID: action.ID, ValidIDs: space.ActionIDs()}
}

// executeAction is the executor-wrapped operation: selector resolution,
// credential substitution, then the environment action.
func (a *Agent) executeAction(ctx context.Context, action schemas.Action) (schemas.Observation, error) {
	var zero schemas.Observation

	resolved, err := a.env.ResolveSelector(ctx, action)
	if err != nil {
		return zero, NewExecutionError("failed to resolve action target", err)
	}
	if a.vault != nil && a.vault.ContainsCredentials(resolved) {
		resolved, err = a.vault.ReplaceCredentials(ctx, resolved, a.trajectory.LastObservation())
		if err != nil {
			return zero, NewExecutionError("failed to substitute credentials", err)
		}
	}

	obs, err := a.env.Act(ctx, resolved)
	if err != nil {
		if KindOf(err) != KindUnknown {
			return zero, err
		}
		return zero, NewExecutionError(fmt.Sprintf("action %s failed", action.Type), err)
	}
	if obs == nil {
		return zero, NewExecutionError(fmt.Sprintf("action %s failed", action.Type), fmt.Errorf("environment returned no observation"))
	}
	return *obs, nil
}

// observeAfterFailure refreshes the page snapshot so the re-run reasons
// about the actual current state, not the one the failed action assumed.
func (a *Agent) observeAfterFailure(ctx context.Context) {
	obs, err := a.env.Observe(ctx)
	if err != nil || obs == nil {
		a.logger.Debug("Post-failure observation failed.", zap.Error(err))
		return
	}
	a.trajectory.AddStep(ActionStatus{
		Input:   fallbackObserveAction(),
		Output:  obs,
		Success: true,
		Message: "Re-observed the current page after a failed action",
	})
}

// queueCorrective is the invalid-action failure handler: it queues the
// agent-facing corrective message for the next context build.
func (a *Agent) queueCorrective(err error) {
	var m messenger
	if errors.As(err, &m) {
		a.pending = append(a.pending, m.AgentMessage())
	}
}

// output assembles the final response.
func (a *Agent) output(start time.Time, answer string, success bool) *AgentResponse {
	return &AgentResponse{
		Answer:          answer,
		Success:         success,
		EnvTrajectory:   a.env.Trajectory(),
		AgentTrajectory: a.trajectory.Steps(),
		Messages:        a.conv.Messages(),
		Duration:        time.Since(start),
		Usage:           a.engine.Usage(),
	}
}

func (a *Agent) invokeCallback(status ActionStatus) {
	if a.stepCallback != nil {
		a.stepCallback(status)
	}
}
