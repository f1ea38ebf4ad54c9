// Package event defines the tagged records exchanged between agents and the
// scheduler. Every conversational turn is a sequence of Events: an agent's
// Run produces them, the scheduler applies them to the Tracker and routes
// follow-up work from them.
package event

import "time"

// Kind tags which variant an Event carries.
type Kind string

const (
	KindUserInput     Kind = "user_input"
	KindBotUtter      Kind = "bot_utter"
	KindSetSlot       Kind = "set_slot"
	KindAgentComplete Kind = "agent_complete"
	KindAgentFail     Kind = "agent_fail"
	KindFollowUpAgent Kind = "follow_up_agent"
	KindCurrentAgent  Kind = "current_agent"
	KindFunctionCall  Kind = "function_call"
)

// CallSite records where a call-step invoked another agent, so its result
// can be delivered back to the right flow + step when the callee finishes.
type CallSite struct {
	Flow string
	Step string
}

// Event is the tagged variant of §3. Only the fields relevant to Kind are
// populated; the rest are zero. This mirrors the shape of the teacher's
// AgentResult/WorkflowResult records, which are also flat structs carrying
// a discriminant plus every variant's fields.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Metadata  map[string]any

	// UserInput
	Text string

	// BotUtter
	Provider   string // agent name the utterance/slot/signal is attributed to
	Additional map[string]any

	// SetSlot
	SlotName string
	Value    any

	// FollowUpAgent
	NextAgent string

	// CurrentAgent
	AgentRef string
	CallSite *CallSite // non-nil if this agent was entered via a flow Call step

	// FunctionCall
	FunctionName string
	Args         map[string]any
	CallID       string
}

// NewUserInput builds a UserInput event.
func NewUserInput(text string) Event {
	return Event{Kind: KindUserInput, Timestamp: time.Now(), Text: text}
}

// NewBotUtter builds a BotUtter event attributed to provider.
func NewBotUtter(provider, text string, additional map[string]any) Event {
	return Event{Kind: KindBotUtter, Timestamp: time.Now(), Provider: provider, Text: text, Additional: additional}
}

// NewSetSlot builds a SetSlot event. slotName may be "agent.arg" or a bare
// "arg" resolved against provider.
func NewSetSlot(slotName string, value any, provider string) Event {
	return Event{Kind: KindSetSlot, Timestamp: time.Now(), SlotName: slotName, Value: value, Provider: provider}
}

// NewAgentComplete builds a terminal success signal from provider.
func NewAgentComplete(provider string, metadata map[string]any) Event {
	return Event{Kind: KindAgentComplete, Timestamp: time.Now(), Provider: provider, Metadata: metadata}
}

// NewAgentFail builds a terminal failure signal from provider.
func NewAgentFail(provider string, metadata map[string]any) Event {
	return Event{Kind: KindAgentFail, Timestamp: time.Now(), Provider: provider, Metadata: metadata}
}

// NewFollowUpAgent requests that next be pushed onto the agent stack.
func NewFollowUpAgent(next, provider string) Event {
	return Event{Kind: KindFollowUpAgent, Timestamp: time.Now(), NextAgent: next, Provider: provider}
}

// NewCurrentAgent builds a scheduler-internal marker naming the active
// agent, optionally back-referencing the flow+step that called it.
func NewCurrentAgent(agentRef string, callSite *CallSite, metadata map[string]any) Event {
	return Event{Kind: KindCurrentAgent, Timestamp: time.Now(), AgentRef: agentRef, CallSite: callSite, Metadata: metadata}
}

// NewFunctionCall builds an LLM-requested tool invocation.
func NewFunctionCall(functionName string, args map[string]any, callID string, metadata map[string]any) Event {
	return Event{Kind: KindFunctionCall, Timestamp: time.Now(), FunctionName: functionName, Args: args, CallID: callID, Metadata: metadata}
}
