// Package tracker implements the per-session state of spec §3: the
// append-only event log, the agent/function variable stores, the
// cross-agent __mapping__ bindings, the agent stack, and per-flow
// FlowInfo instances.
//
// The teacher's closest analogue is team.SharedState (a mutex-guarded set
// of maps plus a change history) generalized from "shared state across a
// multi-agent workflow run" to "everything one conversation session owns".
package tracker

import (
	"log/slog"
	"sync"

	"github.com/kpflow/convoy/event"
)

// Tracker holds all mutable state for one conversation session. It is
// never shared across sessions (spec §5); a Tracker's own mutex only
// protects concurrent reads (e.g. diagnostics) against the single writer
// that owns a turn.
type Tracker struct {
	mu sync.RWMutex

	SessionID string
	SenderID  string // reserved `sender` arg: the user id
	BotName   string // reserved `bot_name` arg

	events       []event.Event
	latestMsgIdx int // index into events of the last UserInput, -1 if none

	// args: agent name -> arg name -> value.
	args map[string]map[string]any
	// funcArgs: tool function name -> arg name -> value.
	funcArgs map[string]map[string]any
	// mapping: called agent name -> local arg name -> Binding.
	mapping map[string]map[string]Binding

	// knownAgents/knownFuncs gate the "unknown reference" no-op rule of
	// invariant 5 / §7. Populated by the bot assembler at construction.
	knownAgents map[string]bool
	knownFuncs  map[string]bool

	agentStack []event.Event // ordered CurrentAgent markers; top = last element

	flowInfo map[string]*FlowInfo // flow agent name -> its FlowInfo

	// agentConvHistory: agent name -> private message log used to build
	// that agent's next LLM prompt (spec §3).
	agentConvHistory map[string][]ConvMessage

	log *slog.Logger
}

// ConvMessage is one entry of an agent's private conversation history.
type ConvMessage struct {
	Role    string
	Content string
}

// New creates a Tracker for sessionID. knownAgents/knownFuncs name every
// agent/tool-function the bot graph declares, used to validate
// setArg/getArg references per invariant 5.
func New(sessionID string, knownAgents, knownFuncs []string) *Tracker {
	t := &Tracker{
		SessionID:        sessionID,
		latestMsgIdx:     -1,
		args:             make(map[string]map[string]any),
		funcArgs:         make(map[string]map[string]any),
		mapping:          make(map[string]map[string]Binding),
		knownAgents:      make(map[string]bool, len(knownAgents)),
		knownFuncs:       make(map[string]bool, len(knownFuncs)),
		flowInfo:         make(map[string]*FlowInfo),
		agentConvHistory: make(map[string][]ConvMessage),
		log:              slog.Default().With("component", "tracker", "session", sessionID),
	}
	for _, a := range knownAgents {
		t.knownAgents[a] = true
	}
	for _, f := range knownFuncs {
		t.knownFuncs[f] = true
	}
	return t
}

// AppendEvent appends ev to the event log (append-only, invariant: events
// list is strictly append-only) and updates LatestMessage on UserInput.
func (t *Tracker) AppendEvent(ev event.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, ev)
	if ev.Kind == event.KindUserInput {
		t.latestMsgIdx = len(t.events) - 1
	}
}

// Events returns a snapshot copy of the event log, per §5's "reads by
// diagnostics must be snapshot-copies" rule.
func (t *Tracker) Events() []event.Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]event.Event, len(t.events))
	copy(out, t.events)
	return out
}

// LatestMessage returns the most recent UserInput event and whether one
// has been seen yet (invariant 1).
func (t *Tracker) LatestMessage() (event.Event, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.latestMsgIdx < 0 {
		return event.Event{}, false
	}
	return t.events[t.latestMsgIdx], true
}

// LastEvent returns the last event appended, if any.
func (t *Tracker) LastEvent() (event.Event, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.events) == 0 {
		return event.Event{}, false
	}
	return t.events[len(t.events)-1], true
}

// IsKnownAgent reports whether name was declared to the Tracker as an agent.
func (t *Tracker) IsKnownAgent(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.knownAgents[name]
}

// IsKnownFunc reports whether name was declared to the Tracker as a tool
// function.
func (t *Tracker) IsKnownFunc(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.knownFuncs[name]
}

// BotUtterSinceLatestMessage reports whether a BotUtter event has been
// appended after the current latest user message, used by the Flow Agent's
// User step to decide whether to start listening (spec §4.2).
func (t *Tracker) BotUtterSinceLatestMessage() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.latestMsgIdx < 0 {
		return false
	}
	for _, ev := range t.events[t.latestMsgIdx+1:] {
		if ev.Kind == event.KindBotUtter {
			return true
		}
	}
	return false
}

// ---- Agent stack ----------------------------------------------------

// PushAgent pushes marker onto the agent stack. If a marker naming the same
// AgentRef already exists, it moves to the top instead of stacking twice
// (spec §3: "duplicates move to top rather than stack twice").
func (t *Tracker) PushAgent(marker event.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeAgentLocked(marker.AgentRef)
	t.agentStack = append(t.agentStack, marker)
}

// ReplaceTopAgent pops the current top (if any) and pushes marker — used
// when an agent switches identity on an internal call (spec §4.1 step 2c,
// CurrentAgent event).
func (t *Tracker) ReplaceTopAgent(marker event.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.agentStack) > 0 {
		t.agentStack = t.agentStack[:len(t.agentStack)-1]
	}
	t.removeAgentLocked(marker.AgentRef)
	t.agentStack = append(t.agentStack, marker)
}

// PopTopAgent removes and returns the top-of-stack marker.
func (t *Tracker) PopTopAgent() (event.Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.agentStack) == 0 {
		return event.Event{}, false
	}
	top := t.agentStack[len(t.agentStack)-1]
	t.agentStack = t.agentStack[:len(t.agentStack)-1]
	return top, true
}

// PeekTopAgent returns the top-of-stack marker without removing it.
func (t *Tracker) PeekTopAgent() (event.Event, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.agentStack) == 0 {
		return event.Event{}, false
	}
	return t.agentStack[len(t.agentStack)-1], true
}

// StackEmpty reports whether the agent stack has no markers.
func (t *Tracker) StackEmpty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.agentStack) == 0
}

func (t *Tracker) removeAgentLocked(name string) {
	for i, m := range t.agentStack {
		if m.AgentRef == name {
			t.agentStack = append(t.agentStack[:i], t.agentStack[i+1:]...)
			return
		}
	}
}

// ---- FlowInfo ---------------------------------------------------------

// FlowInfoFor returns the FlowInfo for flow name, creating it if this is
// the flow's first run in the session (spec §3 Lifecycle).
func (t *Tracker) FlowInfoFor(flow string) *FlowInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	fi, ok := t.flowInfo[flow]
	if !ok {
		fi = NewFlowInfo()
		t.flowInfo[flow] = fi
	}
	return fi
}

// ClearFlowInfo removes the FlowInfo for flow, allowing re-entry (spec
// §4.2 step 5).
func (t *Tracker) ClearFlowInfo(flow string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.flowInfo, flow)
}

// ---- Conversation history ----------------------------------------------

// AppendHistory appends one message to agent's private conversation log.
func (t *Tracker) AppendHistory(agent, role, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.agentConvHistory[agent] = append(t.agentConvHistory[agent], ConvMessage{Role: role, Content: content})
}

// History returns a snapshot copy of agent's private conversation log.
func (t *Tracker) History(agent string) []ConvMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	src := t.agentConvHistory[agent]
	out := make([]ConvMessage, len(src))
	copy(out, src)
	return out
}

// ClearHistory empties agent's private conversation log (spec §4.3 step 4,
// on `status:complete`).
func (t *Tracker) ClearHistory(agent string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.agentConvHistory, agent)
}
