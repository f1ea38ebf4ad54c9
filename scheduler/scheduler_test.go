package scheduler

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpflow/convoy/agentcore"
	"github.com/kpflow/convoy/event"
	"github.com/kpflow/convoy/tracker"
)

// scriptedRunner returns one RunResult per call, in order.
type scriptedRunner struct {
	results []agentcore.RunResult
	calls   int
}

func (r *scriptedRunner) Run(ctx context.Context, tr *tracker.Tracker) (agentcore.RunResult, error) {
	res := r.results[r.calls]
	r.calls++
	return res, nil
}

func newTestTracker(agents ...string) *tracker.Tracker {
	return tracker.New("sess-1", agents, nil)
}

func TestScheduler_SpeakAndWaitEndsTurn(t *testing.T) {
	tr := newTestTracker("greeter")
	tr.AppendEvent(event.NewUserInput(InitText))

	greeter := &scriptedRunner{results: []agentcore.RunResult{
		{IsEnd: true, Events: []event.Event{event.NewBotUtter("greeter", "hi", nil)}},
	}}

	s := New(map[string]agentcore.Runner{"greeter": greeter}, "greeter")
	responses, err := s.PredictNextAction(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, responses)
	assert.Equal(t, 1, greeter.calls)
}

func TestScheduler_FollowUpAgentRunsNextInSameTurn(t *testing.T) {
	tr := newTestTracker("router", "billing_agent")
	tr.AppendEvent(event.NewUserInput("pay my bill"))

	router := &scriptedRunner{results: []agentcore.RunResult{
		{IsEnd: true, Events: []event.Event{event.NewFollowUpAgent("billing_agent", "router")}},
	}}
	billing := &scriptedRunner{results: []agentcore.RunResult{
		{IsEnd: true, Events: []event.Event{event.NewBotUtter("billing_agent", "sure, paid", nil)}},
	}}

	s := New(map[string]agentcore.Runner{"router": router, "billing_agent": billing}, "router")
	responses, err := s.PredictNextAction(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, []string{"sure, paid"}, responses)
	assert.Equal(t, 1, router.calls)
	assert.Equal(t, 1, billing.calls)
}

// callingRunner mimics flow.Agent's execCall: it pushes the callee marker
// directly onto the tracker's stack as a side effect of Run, rather than
// returning a CurrentAgent event for the scheduler to apply. The
// scheduler must detect this stack change on its own.
type callingRunner struct {
	callee   string
	callSite *event.CallSite
	after    []agentcore.RunResult // result to return once the callee has completed
	calls    int
}

func (r *callingRunner) Run(ctx context.Context, tr *tracker.Tracker) (agentcore.RunResult, error) {
	r.calls++
	if r.calls == 1 {
		tr.PushAgent(event.NewCurrentAgent(r.callee, r.callSite, nil))
		return agentcore.RunResult{IsEnd: true}, nil
	}
	return r.after[0], nil
}

func TestScheduler_CallStepAwaitsThenResumesCaller(t *testing.T) {
	tr := newTestTracker("main_flow", "helper_flow")
	tr.AppendEvent(event.NewUserInput("go"))

	mainFlow := &callingRunner{
		callee:   "helper_flow",
		callSite: &event.CallSite{Flow: "main_flow", Step: "step1"},
		after:    []agentcore.RunResult{{IsEnd: true, Events: []event.Event{event.NewBotUtter("main_flow", "done", nil)}}},
	}
	helperFlow := &scriptedRunner{results: []agentcore.RunResult{
		{IsEnd: true, Events: []event.Event{event.NewAgentComplete("helper_flow", nil)}},
	}}

	s := New(map[string]agentcore.Runner{"main_flow": mainFlow, "helper_flow": helperFlow}, "main_flow")
	responses, err := s.PredictNextAction(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, responses)
	assert.Equal(t, 2, mainFlow.calls, "main_flow must resume after helper_flow completes")
	assert.Equal(t, 1, helperFlow.calls)
}

func TestScheduler_QuitToFallbackPopsQuittingAgentNotFallback(t *testing.T) {
	// Regression test: an agent quitting to a configured fallback must emit
	// AgentFail *and* a FollowUpAgent event for the fallback (rather than
	// pushing the fallback onto the tracker directly before returning), so
	// the scheduler's AgentFail handling pops the quitting agent and only
	// then pushes the fallback. Pushing eagerly would leave the fallback on
	// top when AgentFail is processed, so PopTopAgent would remove the
	// fallback instead of the quitting agent, and the fallback would never
	// get a turn to run.
	tr := newTestTracker("booking_agent", "small_talk")
	tr.PushAgent(event.NewCurrentAgent("booking_agent", nil, nil))
	tr.AppendEvent(event.NewUserInput("tell me a joke"))

	booking := &scriptedRunner{results: []agentcore.RunResult{
		{IsEnd: false, Events: []event.Event{
			event.NewAgentFail("booking_agent", nil),
			event.NewFollowUpAgent("small_talk", "booking_agent"),
		}},
	}}
	smallTalk := &scriptedRunner{results: []agentcore.RunResult{
		{IsEnd: true, Events: []event.Event{event.NewBotUtter("small_talk", "sure, a joke...", nil)}},
	}}

	s := New(map[string]agentcore.Runner{"booking_agent": booking, "small_talk": smallTalk}, "booking_agent")
	responses, err := s.PredictNextAction(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, []string{"sure, a joke..."}, responses, "fallback must actually run and reply, not be silently popped")
	assert.Equal(t, 1, booking.calls)
	assert.Equal(t, 1, smallTalk.calls)

	top, ok := tr.PeekTopAgent()
	require.True(t, ok)
	assert.Equal(t, "small_talk", top.AgentRef, "the quitting agent must be gone from the stack, leaving fallback on top")
}

func TestScheduler_UnknownAgentOnStackErrors(t *testing.T) {
	tr := newTestTracker("ghost")
	tr.AppendEvent(event.NewUserInput("hi"))
	tr.PushAgent(event.NewCurrentAgent("ghost", nil, nil))

	s := New(map[string]agentcore.Runner{}, "ghost")
	_, err := s.PredictNextAction(context.Background(), tr)
	assert.Error(t, err)
}

func TestScheduler_MetricsRecordTurnsAndAgentRuns(t *testing.T) {
	tr := newTestTracker("greeter")
	tr.AppendEvent(event.NewUserInput(InitText))

	greeter := &scriptedRunner{results: []agentcore.RunResult{
		{IsEnd: true, Events: []event.Event{event.NewBotUtter("greeter", "hi", nil)}},
	}}

	s := New(map[string]agentcore.Runner{"greeter": greeter}, "greeter")
	s.Metrics = NewMetrics(prometheus.NewRegistry())

	_, err := s.PredictNextAction(context.Background(), tr)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(s.Metrics.turnsTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.Metrics.agentRunsTotal.WithLabelValues("greeter")))
}
