package tracker

import (
	"time"

	"github.com/kpflow/convoy/event"
)

// Path identifies a step by descent into conditional branches:
// [subflow_name, step_id, step_id, ...]. Top of a FlowInfo's runtime stack
// is the next step to resume (spec §3).
type Path []string

// Subflow returns the subflow name the path is rooted at.
func (p Path) Subflow() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// StepID returns the leaf step id the path resolves to, or "" if the path
// names only a subflow.
func (p Path) StepID() string {
	if len(p) < 2 {
		return ""
	}
	return p[len(p)-1]
}

// WithStep returns a new path with id appended, never mutating p — paths
// are value records per spec §9 ("the interpreter never mutates a path in
// place, it pops/pushes").
func (p Path) WithStep(id string) Path {
	next := make(Path, len(p)+1)
	copy(next, p)
	next[len(p)] = id
	return next
}

// Key renders the path as a stable string, used to index FlowInfo.counter.
func (p Path) Key() string {
	s := ""
	for i, seg := range p {
		if i > 0 {
			s += "/"
		}
		s += seg
	}
	return s
}

// FlowInfo is the runtime stack and counters for one active flow-agent
// instance in a session (spec §3). One exists per (session, flow agent)
// pair for the agent's lifetime: created on first run, removed on
// completion.
type FlowInfo struct {
	RuntimeStack    []Path
	InternalStates  map[string]any
	Counter         map[string]int
	IsListen        bool
	LastTimeExtract time.Time

	callResults map[string]event.Event // step key -> result delivered by setCallResult
}

// NewFlowInfo returns an empty FlowInfo ready for its first step.
func NewFlowInfo() *FlowInfo {
	return &FlowInfo{
		InternalStates: make(map[string]any),
		Counter:        make(map[string]int),
		callResults:    make(map[string]event.Event),
	}
}

// Push puts p on top of the runtime stack.
func (fi *FlowInfo) Push(p Path) {
	fi.RuntimeStack = append(fi.RuntimeStack, p)
}

// Pop removes and returns the top of the runtime stack.
func (fi *FlowInfo) Pop() (Path, bool) {
	if len(fi.RuntimeStack) == 0 {
		return nil, false
	}
	top := fi.RuntimeStack[len(fi.RuntimeStack)-1]
	fi.RuntimeStack = fi.RuntimeStack[:len(fi.RuntimeStack)-1]
	return top, true
}

// Peek returns the top of the runtime stack without removing it.
func (fi *FlowInfo) Peek() (Path, bool) {
	if len(fi.RuntimeStack) == 0 {
		return nil, false
	}
	return fi.RuntimeStack[len(fi.RuntimeStack)-1], true
}

// Clear empties the runtime stack, used by Next's label jump and by a
// completed flow being reset for re-entry.
func (fi *FlowInfo) Clear() {
	fi.RuntimeStack = nil
}

// Empty reports whether the runtime stack has no pending path.
func (fi *FlowInfo) Empty() bool {
	return len(fi.RuntimeStack) == 0
}

// Visit increments and returns the visit count for the step at key,
// enforcing If/ElseIf/Else/Next's `tries` limits.
func (fi *FlowInfo) Visit(key string) int {
	fi.Counter[key]++
	return fi.Counter[key]
}

// VisitCount returns the current visit count for key without incrementing.
func (fi *FlowInfo) VisitCount(key string) int {
	return fi.Counter[key]
}

// SetCallResult records the terminal event a called agent reported for the
// call at stepKey, so the Call step's next interpreter pass can resolve it
// (spec §4.2 Call / §4.1 step 2c).
func (fi *FlowInfo) SetCallResult(stepKey string, result event.Event) {
	fi.callResults[stepKey] = result
}

// TakeCallResult returns and clears any result recorded for stepKey.
func (fi *FlowInfo) TakeCallResult(stepKey string) (event.Event, bool) {
	result, ok := fi.callResults[stepKey]
	if ok {
		delete(fi.callResults, stepKey)
	}
	return result, ok
}
