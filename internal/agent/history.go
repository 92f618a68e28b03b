// File: internal/agent/history.go
package agent

import (
	"fmt"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/wayfarer-cli/internal/config"
)

// HistoryRenderer replays the trajectory into the conversation during context
// build. One renderer variant exists per history strategy; the variant is
// selected once at agent construction, not re-branched on every step.
type HistoryRenderer interface {
	// Render appends the history replay to the conversation.
	Render(conv *Conversation, traj *TrajectoryHistory)

	// AppendsLatestObservation reports whether the step loop should add the
	// latest valid observation as the closing user turn. The full
	// conversation variant already replays every observation inline.
	AppendsLatestObservation() bool
}

// NewHistoryRenderer selects the renderer variant for the given strategy.
func NewHistoryRenderer(strategy config.HistoryStrategy, perception *Perception, includeScreenshot bool) (HistoryRenderer, error) {
	switch strategy {
	case config.HistoryFullConversation:
		return &fullConversationRenderer{perception: perception, includeScreenshot: includeScreenshot}, nil
	case config.HistoryShortObs:
		return &shortObservationsRenderer{perception: perception, data: dataNone}, nil
	case config.HistoryShortObsRawData:
		return &shortObservationsRenderer{perception: perception, data: dataRaw}, nil
	case config.HistoryShortObsData:
		return &shortObservationsRenderer{perception: perception, data: dataShort}, nil
	case config.HistoryCompressed:
		return &compressedRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown history strategy: %q", strategy)
	}
}

// renderDecision adds the reasoning output of a step as an assistant turn.
func renderDecision(conv *Conversation, step Step) {
	if step.Decision == nil {
		return
	}
	payload, err := json.Marshal(step.Decision)
	if err != nil {
		return
	}
	conv.AddAssistantMessage(string(payload))
}

// fullConversationRenderer replays every past decision and every result's
// full perception, growth bounded only by the conversation's token budget.
type fullConversationRenderer struct {
	perception        *Perception
	includeScreenshot bool
}

func (r *fullConversationRenderer) AppendsLatestObservation() bool { return false }

func (r *fullConversationRenderer) Render(conv *Conversation, traj *TrajectoryHistory) {
	steps := traj.Steps()
	if len(steps) == 0 {
		conv.AddUserMessage(traj.StartRules())
		return
	}
	for _, step := range steps {
		renderDecision(conv, step)
		for _, result := range step.Results {
			conv.AddUserMessage(traj.PerceiveStepResult(result, true))
			if !result.Success || result.Output == nil {
				continue
			}
			var image []byte
			if r.includeScreenshot {
				image = result.Output.Screenshot
			}
			conv.AddUserMessageWithImage(r.perception.Perceive(result.Output), image)
		}
	}
}

// dataMode controls whether scraped data is re-included on replay.
type dataMode int

const (
	dataNone dataMode = iota
	dataRaw
	dataShort
)

// shortObservationsRenderer replays only compact action outcomes; the single
// latest full observation is appended by the step loop. Depending on the
// mode, structured data scraped by past steps is re-included verbatim or
// summarized.
type shortObservationsRenderer struct {
	perception *Perception
	data       dataMode
}

func (r *shortObservationsRenderer) AppendsLatestObservation() bool { return true }

func (r *shortObservationsRenderer) Render(conv *Conversation, traj *TrajectoryHistory) {
	steps := traj.Steps()
	if len(steps) == 0 {
		conv.AddUserMessage(traj.StartRules())
		return
	}
	for _, step := range steps {
		renderDecision(conv, step)
		for _, result := range step.Results {
			conv.AddUserMessage(traj.PerceiveStepResult(result, true))
			if !result.Success || result.Output == nil {
				continue
			}
			if r.data != dataNone && result.Output.HasData() {
				conv.AddUserMessage(r.perception.PerceiveData(result.Output, r.data == dataRaw))
			}
		}
	}
}

// compressedRenderer collapses the entire history into one synthesized
// digest instead of per-step replay.
type compressedRenderer struct{}

func (r *compressedRenderer) AppendsLatestObservation() bool { return true }

func (r *compressedRenderer) Render(conv *Conversation, traj *TrajectoryHistory) {
	conv.AddUserMessage(traj.Perceive())
}
