// File: internal/agent/validator.go
package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfarer-cli/api/schemas"
)

// ValidationResult is the structured verdict returned by the judge model.
type ValidationResult struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason"`
}

// CompletionValidator asks a second model pass to judge a claimed success
// before the run is allowed to finish. A rejected completion is converted
// back into a failed step so the loop can keep working.
type CompletionValidator struct {
	engine schemas.LLMEngine
	logger *zap.Logger
}

func NewCompletionValidator(engine schemas.LLMEngine, logger *zap.Logger) *CompletionValidator {
	return &CompletionValidator{engine: engine, logger: logger.Named("validator")}
}

// Validate judges whether the answer actually satisfies the task given the
// final page state. An engine failure is treated as a pass so a flaky judge
// cannot deadlock an otherwise finished run.
func (v *CompletionValidator) Validate(ctx context.Context, task, answer string, obs *schemas.Observation) ValidationResult {
	prompt := fmt.Sprintf(`You are a strict judge. A web agent claims it completed a task.

Task: %s
Claimed answer: %s
`, task, answer)
	if obs != nil {
		prompt += fmt.Sprintf("Final page: %s (%s)\n", obs.Title, obs.URL)
	}
	prompt += `
Respond with a JSON object only: {"is_valid": <bool>, "reason": "<short explanation>"}`

	messages := []schemas.Message{
		{Role: schemas.RoleSystem, Content: "You evaluate whether a task was truly completed. Respond with JSON only."},
		{Role: schemas.RoleUser, Content: prompt},
	}

	var result ValidationResult
	if err := v.engine.StructuredCompletion(ctx, messages, &result); err != nil {
		v.logger.Warn("Completion validation failed, accepting answer.", zap.Error(err))
		return ValidationResult{IsValid: true, Reason: "validator unavailable"}
	}
	return result
}
