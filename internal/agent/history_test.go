// File: internal/agent/history_test.go
package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/wayfarer-cli/api/schemas"
	"github.com/xkilldash9x/wayfarer-cli/internal/config"
	"github.com/xkilldash9x/wayfarer-cli/internal/observability"
)

func TestNewHistoryRendererSelectsVariant(t *testing.T) {
	perception := NewPerception()
	tests := []struct {
		strategy      config.HistoryStrategy
		appendsLatest bool
	}{
		{config.HistoryFullConversation, false},
		{config.HistoryShortObs, true},
		{config.HistoryShortObsRawData, true},
		{config.HistoryShortObsData, true},
		{config.HistoryCompressed, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			r, err := NewHistoryRenderer(tt.strategy, perception, false)
			require.NoError(t, err)
			assert.Equal(t, tt.appendsLatest, r.AppendsLatestObservation())
		})
	}

	_, err := NewHistoryRenderer("bogus", perception, false)
	assert.Error(t, err)
}

func renderedContents(conv *Conversation) []string {
	msgs := conv.Messages()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func populatedTrajectory() *TrajectoryHistory {
	traj := NewTrajectoryHistory(500)
	traj.AddOutput(&StepDecision{State: DecisionState{NextGoal: "open the page"}})
	obs := obsAt("https://a.test")
	obs.Data = &schemas.ScrapedData{Content: "scraped contents of the page"}
	traj.AddStep(successStatus(schemas.Action{ID: "goto", Type: schemas.ActionGoto}, obs))
	return traj
}

func TestEmptyTrajectoryRendersStartRules(t *testing.T) {
	perception := NewPerception()
	traj := NewTrajectoryHistory(500)
	for _, strategy := range []config.HistoryStrategy{
		config.HistoryFullConversation,
		config.HistoryShortObs,
		config.HistoryCompressed,
	} {
		conv := NewConversation(16000, "m", observability.GetLogger())
		r, err := NewHistoryRenderer(strategy, perception, false)
		require.NoError(t, err)
		r.Render(conv, traj)
		assert.Contains(t, renderedContents(conv), traj.StartRules(), "strategy %s", strategy)
	}
}

func TestFullConversationRendererReplaysObservations(t *testing.T) {
	conv := NewConversation(16000, "m", observability.GetLogger())
	r, err := NewHistoryRenderer(config.HistoryFullConversation, NewPerception(), false)
	require.NoError(t, err)

	r.Render(conv, populatedTrajectory())

	joined := ""
	for _, c := range renderedContents(conv) {
		joined += c + "\n"
	}
	assert.Contains(t, joined, "open the page", "decision replayed")
	assert.Contains(t, joined, "[ok]", "result line replayed")
	assert.Contains(t, joined, "Current page:", "full perception replayed inline")
}

func TestShortObservationsRendererSkipsFullPerceptions(t *testing.T) {
	conv := NewConversation(16000, "m", observability.GetLogger())
	r, err := NewHistoryRenderer(config.HistoryShortObs, NewPerception(), false)
	require.NoError(t, err)

	r.Render(conv, populatedTrajectory())

	joined := ""
	for _, c := range renderedContents(conv) {
		joined += c + "\n"
	}
	assert.Contains(t, joined, "[ok]")
	assert.NotContains(t, joined, "Current page:")
	assert.NotContains(t, joined, "scraped contents")
}

func TestShortObservationsWithDataRendererIncludesData(t *testing.T) {
	conv := NewConversation(16000, "m", observability.GetLogger())
	r, err := NewHistoryRenderer(config.HistoryShortObsData, NewPerception(), false)
	require.NoError(t, err)

	r.Render(conv, populatedTrajectory())

	joined := ""
	for _, c := range renderedContents(conv) {
		joined += c + "\n"
	}
	assert.Contains(t, joined, "scraped contents of the page")
}

func TestCompressedRendererEmitsSingleDigest(t *testing.T) {
	conv := NewConversation(16000, "m", observability.GetLogger())
	r, err := NewHistoryRenderer(config.HistoryCompressed, NewPerception(), false)
	require.NoError(t, err)

	traj := populatedTrajectory()
	r.Render(conv, traj)

	contents := renderedContents(conv)
	require.Len(t, contents, 1)
	assert.Equal(t, traj.Perceive(), contents[0])
}
