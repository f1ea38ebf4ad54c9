package toolcall

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpflow/convoy/event"
)

type fakeExecutor struct {
	descs []Descriptor
	res   ExecResult
	err   error
	calls []string
}

func (f *fakeExecutor) Descriptors(ctx context.Context) ([]Descriptor, error) {
	return f.descs, nil
}

func (f *fakeExecutor) ExecuteFunction(ctx context.Context, name string, kwargs map[string]any) (ExecResult, error) {
	f.calls = append(f.calls, name)
	if f.err != nil {
		return ExecResult{}, f.err
	}
	return f.res, nil
}

func TestCaller_RegisterAndIsToolFunction(t *testing.T) {
	exec := &fakeExecutor{descs: []Descriptor{{Name: "lookup_order"}}}
	c := NewCaller()
	require.NoError(t, c.RegisterExecutor(context.Background(), exec))

	assert.True(t, c.IsToolFunction("lookup_order"))
	assert.False(t, c.IsToolFunction("unknown"))

	d, ok := c.Descriptor("lookup_order")
	require.True(t, ok)
	assert.Equal(t, "lookup_order", d.Name)
}

func TestCaller_NameConflictKeepsFirstRegistration(t *testing.T) {
	first := &fakeExecutor{descs: []Descriptor{{Name: "shared", Description: "first"}}}
	second := &fakeExecutor{descs: []Descriptor{{Name: "shared", Description: "second"}}}
	c := NewCaller()
	require.NoError(t, c.RegisterExecutor(context.Background(), first))
	require.NoError(t, c.RegisterExecutor(context.Background(), second))

	d, ok := c.Descriptor("shared")
	require.True(t, ok)
	assert.Equal(t, "first", d.Description)
}

func TestCaller_Call_TranslatesBotArgStatusItems(t *testing.T) {
	exec := &fakeExecutor{
		descs: []Descriptor{{Name: "book_flight"}},
		res: ExecResult{
			Status: "success",
			Result: []map[string]any{
				{"bot": "Booked!"},
				{"arg": "confirmation_code", "value": "XYZ123"},
				{"arg": "billing_flow.amount", "value": 42.0},
				{"status": "success", "msg": "done"},
			},
		},
	}
	c := NewCaller()
	require.NoError(t, c.RegisterExecutor(context.Background(), exec))

	events, err := c.Call(context.Background(), "booking_flow", "book_flight", map[string]any{"dest": "SFO"})
	require.NoError(t, err)
	require.Len(t, exec.calls, 1)
	assert.Equal(t, "book_flight", exec.calls[0])

	require.Len(t, events, 4)
	assert.Equal(t, event.KindBotUtter, events[0].Kind)
	assert.Equal(t, "Booked!", events[0].Text)

	assert.Equal(t, event.KindSetSlot, events[1].Kind)
	assert.Equal(t, "confirmation_code", events[1].SlotName)
	assert.Equal(t, "booking_flow", events[1].Provider, "unqualified arg resolves against the calling agent")

	assert.Equal(t, event.KindSetSlot, events[2].Kind)
	assert.Equal(t, "amount", events[2].SlotName)
	assert.Equal(t, "billing_flow", events[2].Provider, "qualified agent.arg overrides the calling agent")

	assert.Equal(t, event.KindAgentComplete, events[3].Kind)
}

func TestCaller_Call_NonJSONStdoutBecomesBotUtter(t *testing.T) {
	exec := &fakeExecutor{
		descs: []Descriptor{{Name: "run_report"}},
		res:   ExecResult{Status: "success", Stdout: "report: all systems nominal"},
	}
	c := NewCaller()
	require.NoError(t, c.RegisterExecutor(context.Background(), exec))

	events, err := c.Call(context.Background(), "ops_flow", "run_report", nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.KindBotUtter, events[0].Kind)
	assert.Equal(t, "report: all systems nominal", events[0].Text)
	assert.Equal(t, true, events[0].Additional["raw_stdout"])
}

func TestCaller_Call_ExecutorErrorEmitsAgentFail(t *testing.T) {
	exec := &fakeExecutor{descs: []Descriptor{{Name: "flaky"}}, err: assertErr("boom")}
	c := NewCaller()
	require.NoError(t, c.RegisterExecutor(context.Background(), exec))

	events, err := c.Call(context.Background(), "main_flow", "flaky", nil)
	require.NoError(t, err, "backend failures surface as AgentFail events, not Go errors")
	require.Len(t, events, 1)
	assert.Equal(t, event.KindAgentFail, events[0].Kind)
}

func TestCaller_Execute_ReturnsRawResult(t *testing.T) {
	exec := &fakeExecutor{
		descs: []Descriptor{{Name: "run_report"}},
		res:   ExecResult{Status: "success", Stdout: "42 widgets shipped"},
	}
	c := NewCaller()
	require.NoError(t, c.RegisterExecutor(context.Background(), exec))

	res, err := c.Execute(context.Background(), "run_report", nil)
	require.NoError(t, err)
	assert.Equal(t, "42 widgets shipped", res.Stdout, "Execute hands back the raw result, unlike Call")
}

func TestCaller_Call_UnknownFunctionErrors(t *testing.T) {
	c := NewCaller()
	_, err := c.Call(context.Background(), "main_flow", "nope", nil)
	assert.Error(t, err)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
