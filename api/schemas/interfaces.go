// File: api/schemas/interfaces.go
package schemas

import "context"

// Environment is the stateful browsing session the agent acts against. A
// session is owned by exactly one agent run; implementations are not required
// to be safe for concurrent use.
//
// Every call honors the caller's context for cancellation and timeouts. The
// environment never retries on its own; retry policy belongs to the caller.
type Environment interface {
	// Start acquires the session resources. It must be balanced by Close on
	// every exit path.
	Start(ctx context.Context) error

	// Observe returns a fresh snapshot of the current page state without
	// performing any action.
	Observe(ctx context.Context) (*Observation, error)

	// Act executes one action and returns the resulting observation.
	Act(ctx context.Context, action Action) (*Observation, error)

	// ResolveSelector returns a copy of the action with its Selector field
	// populated from the current page snapshot.
	ResolveSelector(ctx context.Context, action Action) (Action, error)

	// Trajectory returns every observation produced so far, in order.
	Trajectory() []*Observation

	// Reset clears all session state so the environment can serve a new task.
	Reset(ctx context.Context) error

	// Close releases the session resources.
	Close(ctx context.Context) error
}

// LLMEngine turns a message list into a structured decision. Implementations
// must be safe for concurrent use by independent agent runs.
type LLMEngine interface {
	// StructuredCompletion submits the messages and unmarshals the model's
	// JSON response into out.
	StructuredCompletion(ctx context.Context, messages []Message, out any) error

	// Usage returns the accumulated token accounting for this engine.
	Usage() UsageSummary
}

// CredentialVault substitutes secrets into actions at execution time while
// keeping them out of everything the reasoning engine sees.
type CredentialVault interface {
	// ContainsCredentials reports whether the action references a
	// vault-managed placeholder.
	ContainsCredentials(action Action) bool

	// ReplaceCredentials returns a copy of the action with placeholders
	// replaced by the real secrets for the observed page. The action must
	// already carry a resolved selector.
	ReplaceCredentials(ctx context.Context, action Action, obs *Observation) (Action, error)

	// ReplacementMap maps each stored secret to the placeholder that stands
	// in for it in reasoning-engine traffic.
	ReplacementMap() map[string]string

	// Instructions returns the prompt fragment explaining placeholder usage
	// to the reasoning engine.
	Instructions() string
}
