// File: internal/agent/trajectory.go
package agent

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/wayfarer-cli/api/schemas"
)

// TrajectoryHistory is the append-only record of a run. Steps are ordered by
// occurrence and never mutated in place; the history only grows by appends or
// is reset wholesale between tasks.
type TrajectoryHistory struct {
	steps          []Step
	maxErrorLength int
}

// NewTrajectoryHistory builds an empty history. Error messages rendered into
// perceptions are truncated to maxErrorLength characters.
func NewTrajectoryHistory(maxErrorLength int) *TrajectoryHistory {
	return &TrajectoryHistory{maxErrorLength: maxErrorLength}
}

// AddOutput appends a new step opened by the given reasoning output.
func (t *TrajectoryHistory) AddOutput(decision *StepDecision) {
	t.steps = append(t.steps, Step{Decision: decision})
}

// AddStep appends an execution result to the most recent step. A result
// arriving before any output opens an anonymous step rather than being lost.
func (t *TrajectoryHistory) AddStep(status ActionStatus) {
	if len(t.steps) == 0 {
		t.steps = append(t.steps, Step{})
	}
	last := &t.steps[len(t.steps)-1]
	last.Results = append(last.Results, status)
}

// Steps returns a snapshot of the recorded steps in insertion order.
func (t *TrajectoryHistory) Steps() []Step {
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// Len returns the number of recorded steps.
func (t *TrajectoryHistory) Len() int { return len(t.steps) }

// LastObservation returns the output of the most recent successful result
// that produced an observation, or nil.
func (t *TrajectoryHistory) LastObservation() *schemas.Observation {
	for i := len(t.steps) - 1; i >= 0; i-- {
		results := t.steps[i].Results
		for j := len(results) - 1; j >= 0; j-- {
			if results[j].Success && results[j].Output != nil {
				return results[j].Output
			}
		}
	}
	return nil
}

// Reset clears all steps; used between tasks on the same agent instance.
func (t *TrajectoryHistory) Reset() {
	t.steps = nil
}

// PerceiveStepResult renders one result as a short line for the reasoning
// context. Error messages are truncated to the configured maximum.
func (t *TrajectoryHistory) PerceiveStepResult(status ActionStatus, includeIDs bool) string {
	id := ""
	if includeIDs && status.Input.ID != "" {
		id = fmt.Sprintf(" %s", status.Input.ID)
	}
	if status.Success {
		return fmt.Sprintf("[ok] action %s%s executed", status.Input.Type, id)
	}
	msg := status.Message
	if t.maxErrorLength > 0 {
		runes := []rune(msg)
		if len(runes) > t.maxErrorLength {
			msg = string(runes[:t.maxErrorLength]) + "..."
		}
	}
	return fmt.Sprintf("[failed] action %s%s: %s", status.Input.Type, id, msg)
}

// StartRules is the opening message injected when the history is still empty.
func (t *TrajectoryHistory) StartRules() string {
	return "No actions executed yet. Start by navigating to the requested page with a GOTO action."
}

// Perceive collapses the whole history into one textual digest, used by the
// compressed rendering strategy.
func (t *TrajectoryHistory) Perceive() string {
	if len(t.steps) == 0 {
		return t.StartRules()
	}
	var b strings.Builder
	b.WriteString("Trajectory so far:\n")
	for i, step := range t.steps {
		if step.Decision != nil && step.Decision.State.NextGoal != "" {
			fmt.Fprintf(&b, "step %d goal: %s\n", i, step.Decision.State.NextGoal)
		}
		for _, result := range step.Results {
			fmt.Fprintf(&b, "  %s\n", t.PerceiveStepResult(result, true))
		}
	}
	return b.String()
}
