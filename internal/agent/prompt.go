// File: internal/agent/prompt.go
package agent

import (
	"fmt"
	"strings"
)

// Prompts builds the static prompt material for the step loop. The system
// prompt is rendered once per context build; the task message opens the
// user side of the conversation.
type Prompts struct {
	maxActionsPerStep int
	extraInstructions string
}

func NewPrompts(maxActionsPerStep int, extraInstructions string) *Prompts {
	return &Prompts{
		maxActionsPerStep: maxActionsPerStep,
		extraInstructions: extraInstructions,
	}
}

// System renders the system prompt describing the agent's contract with the
// reasoning model: the JSON schema of a step decision and the action rules.
func (p *Prompts) System() string {
	var b strings.Builder
	b.WriteString(`You are an autonomous web agent. You control a browser to accomplish the user's task.

At each step you receive the current page state: its URL, title, interactive elements and any scraped data. You respond with a single JSON object and nothing else. The object has this shape:

{
  "state": {
    "page_summary": "what the current page shows",
    "previous_goal_eval": "did the previous action achieve its goal",
    "memory": "facts gathered so far that matter for the task",
    "next_goal": "what the next action should achieve"
  },
  "actions": [{"id": "<action id>", "value": "<text for fill actions, else omit>"}],
  "completion": {"success": true, "answer": "<final answer>"}
}

Rules:
- Only use action ids that appear in the current page's element list or the page-level actions (goto, go_back, scroll, scrape). For goto, put the target URL in "value".
- "completion" is only present when the task is finished. Set "success" to true and put the full answer in "answer". If the task cannot be completed, set "success" to false and explain why in "answer".
`)
	fmt.Fprintf(&b, "- Emit at most %d action(s) per step.\n", p.maxActionsPerStep)
	if p.extraInstructions != "" {
		b.WriteString("\n")
		b.WriteString(p.extraInstructions)
		b.WriteString("\n")
	}
	return b.String()
}

// Task renders the opening user message for a run.
func (p *Prompts) Task(task string) string {
	return fmt.Sprintf("Your task: %s", task)
}

// ActionRequest closes a context build, asking the model for its next
// decision.
func (p *Prompts) ActionRequest() string {
	return "Decide your next step. Respond with the JSON object only."
}
