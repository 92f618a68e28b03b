// File: internal/agent/models.go
package agent

import (
	"time"

	"github.com/xkilldash9x/wayfarer-cli/api/schemas"
)

// DecisionState is the reasoning engine's self-reported working state,
// carried on every decision so the next context build can replay it.
type DecisionState struct {
	PageSummary      string `json:"page_summary"`
	PreviousGoalEval string `json:"previous_goal_eval"`
	Memory           string `json:"memory"`
	NextGoal         string `json:"next_goal"`
}

// Completion is the reasoning engine's claim that the task is finished.
type Completion struct {
	Success bool   `json:"success"`
	Answer  string `json:"answer"`
}

// StepDecision is the structured output of one reasoning call: a state
// digest, zero or more candidate actions, and an optional completion signal.
// A completion short-circuits action execution for that step.
type StepDecision struct {
	State      DecisionState    `json:"state"`
	Actions    []schemas.Action `json:"actions"`
	Completion *Completion      `json:"completion,omitempty"`
}

// ActionsWithin returns at most limit candidate actions, in decision order.
func (d *StepDecision) ActionsWithin(limit int) []schemas.Action {
	if limit <= 0 || limit >= len(d.Actions) {
		return d.Actions
	}
	return d.Actions[:limit]
}

// ActionStatus is the execution envelope specialization used throughout the
// step loop: one candidate action in, one observation out.
type ActionStatus = ExecutionStatus[schemas.Action, schemas.Observation]

// Step is one trajectory entry: the reasoning output that opened the step
// and the ordered results of the actions it triggered. Owned exclusively by
// the TrajectoryHistory; append-only.
type Step struct {
	Decision *StepDecision
	Results  []ActionStatus
}

// AgentResponse is the final product of a run.
type AgentResponse struct {
	Answer  string `json:"answer"`
	Success bool   `json:"success"`

	EnvTrajectory   []*schemas.Observation `json:"env_trajectory,omitempty"`
	AgentTrajectory []Step                 `json:"-"`
	Messages        []schemas.Message      `json:"-"`

	Duration time.Duration        `json:"duration"`
	Usage    schemas.UsageSummary `json:"usage"`
}

// fallbackObserveAction is the synthetic input recorded when the agent
// re-observes the page after a failed action.
func fallbackObserveAction() schemas.Action {
	return schemas.Action{ID: "observe", Type: schemas.ActionObserve}
}
