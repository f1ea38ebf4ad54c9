package agentcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpflow/convoy/event"
	"github.com/kpflow/convoy/model"
)

func TestEnsembleAgent_InitStepsRunOnlyOnce(t *testing.T) {
	tr := newTrackerFor("router", "billing_agent")
	tr.AppendEvent(event.NewUserInput("hi"))

	adapter := &scriptedAdapter{turns: [][]model.GeneratedEvent{
		{{Text: "None"}},
		{{Text: "None"}},
	}}

	e := NewEnsembleAgent("router")
	e.Contains = []string{"billing_agent"}
	e.Descriptions["billing_agent"] = "handles billing questions"
	e.InitSteps = []InitStep{{Agent: "billing_agent", Arg: "region", Value: "EU"}}
	e.Model = adapter

	_, err := e.Run(context.Background(), tr)
	require.NoError(t, err)
	v, ok := tr.GetArg("billing_agent", "region")
	require.True(t, ok)
	assert.Equal(t, "EU", v)

	tr.SetArg("billing_agent", "region", "US")
	_, err = e.Run(context.Background(), tr)
	require.NoError(t, err)
	v, _ = tr.GetArg("billing_agent", "region")
	assert.Equal(t, "US", v, "init steps must not re-run and clobber later changes")
}

func TestEnsembleAgent_RemainingCandidatesExcludeReported(t *testing.T) {
	tr := newTrackerFor("router", "billing_agent", "support_agent")
	tr.AppendEvent(event.NewUserInput("help me"))
	tr.AppendEvent(event.NewAgentFail("billing_agent", nil))

	adapter := &scriptedAdapter{turns: [][]model.GeneratedEvent{
		{{Text: "support_agent"}},
	}}

	e := NewEnsembleAgent("router")
	e.Contains = []string{"billing_agent", "support_agent"}
	e.Descriptions["billing_agent"] = "billing"
	e.Descriptions["support_agent"] = "support"
	e.Model = adapter

	result, err := e.Run(context.Background(), tr)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, event.KindFollowUpAgent, result.Events[0].Kind)
	assert.Equal(t, "support_agent", result.Events[0].NextAgent)

	prompt := adapter.seen[0][0].Content
	assert.NotContains(t, prompt, "- billing_agent:", "a reported candidate must be dropped from the prompt")
}

func TestEnsembleAgent_NoRemainingCandidatesReturnsImmediately(t *testing.T) {
	tr := newTrackerFor("router", "billing_agent")
	tr.AppendEvent(event.NewUserInput("thanks"))
	tr.AppendEvent(event.NewAgentComplete("billing_agent", nil))

	adapter := &scriptedAdapter{}
	e := NewEnsembleAgent("router")
	e.Contains = []string{"billing_agent"}
	e.Model = adapter

	result, err := e.Run(context.Background(), tr)
	require.NoError(t, err)
	assert.True(t, result.IsEnd)
	assert.Empty(t, result.Events)
	assert.Equal(t, 0, adapter.calls, "the model must not be called when no candidates remain and there is no KB result")
}

func TestEnsembleAgent_FallbackReplyPushesFallbackAgent(t *testing.T) {
	tr := newTrackerFor("router", "billing_agent", "small_talk")
	tr.AppendEvent(event.NewUserInput("what's your favorite color"))

	adapter := &scriptedAdapter{turns: [][]model.GeneratedEvent{
		{{Text: "[Fallback]"}},
	}}

	e := NewEnsembleAgent("router")
	e.Contains = []string{"billing_agent"}
	e.Descriptions["billing_agent"] = "billing"
	e.Fallback = "small_talk"
	e.Model = adapter

	result, err := e.Run(context.Background(), tr)
	require.NoError(t, err)
	assert.False(t, result.IsEnd)

	top, ok := tr.PeekTopAgent()
	require.True(t, ok)
	assert.Equal(t, "small_talk", top.AgentRef)
}

func TestEnsembleAgent_NoneWithNoBotUtterRunsFallback(t *testing.T) {
	tr := newTrackerFor("router", "billing_agent", "small_talk")
	tr.AppendEvent(event.NewUserInput("hm"))

	adapter := &scriptedAdapter{turns: [][]model.GeneratedEvent{
		{{Text: "None"}},
	}}

	e := NewEnsembleAgent("router")
	e.Contains = []string{"billing_agent"}
	e.Descriptions["billing_agent"] = "billing"
	e.Fallback = "small_talk"
	e.Model = adapter

	result, err := e.Run(context.Background(), tr)
	require.NoError(t, err)
	assert.False(t, result.IsEnd)
	top, ok := tr.PeekTopAgent()
	require.True(t, ok)
	assert.Equal(t, "small_talk", top.AgentRef)
}

func TestEnsembleAgent_NoneAfterBotUtterEndsTurn(t *testing.T) {
	tr := newTrackerFor("router", "billing_agent", "small_talk")
	tr.AppendEvent(event.NewUserInput("hm"))
	tr.AppendEvent(event.NewBotUtter("billing_agent", "anything else?", nil))

	adapter := &scriptedAdapter{turns: [][]model.GeneratedEvent{
		{{Text: "None"}},
	}}

	e := NewEnsembleAgent("router")
	e.Contains = []string{"billing_agent"}
	e.Descriptions["billing_agent"] = "billing"
	e.Fallback = "small_talk"
	e.Model = adapter

	result, err := e.Run(context.Background(), tr)
	require.NoError(t, err)
	assert.True(t, result.IsEnd)
	assert.True(t, tr.StackEmpty(), "a BotUtter already fired this turn, so fallback must not run")
}
