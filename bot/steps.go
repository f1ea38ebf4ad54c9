package bot

import (
	"fmt"
	"sort"

	"github.com/kpflow/convoy/flow"
)

// buildSubflows converts every authored subflow's step tree into
// flow.Subflow, assigning sequential per-sibling-list ids to any step that
// didn't declare its own — flow.Agent.stepAt only needs ids unique among
// siblings, never globally.
func buildSubflows(raw map[string][]StepConfig) map[string]*flow.Subflow {
	out := make(map[string]*flow.Subflow, len(raw))
	for name, steps := range raw {
		out[name] = &flow.Subflow{Name: name, Steps: buildSteps(steps)}
	}
	return out
}

func buildSteps(raw []StepConfig) []flow.Step {
	steps := make([]flow.Step, len(raw))
	for i, s := range raw {
		steps[i] = buildStep(s, i)
	}
	return steps
}

func buildStep(s StepConfig, index int) flow.Step {
	id := s.ID
	if id == "" {
		id = fmt.Sprintf("s%d", index)
	}

	step := flow.Step{
		ID:        id,
		Kind:      flow.StepKind(s.Kind),
		Text:      s.Bot,
		Statement: s.If,
		Tries:     s.Tries,
		Label:     s.Next,
		Args:      s.Args,
		Status:    s.Return,
		Msg:       s.Msg,
	}

	if s.Call != "" {
		step.Name = s.Call
	}
	if s.Kind == string(flow.StepLabel) {
		step.Name = s.Label
		if s.Label == "" {
			step.Name = s.ID
		}
	}

	if len(s.Set) > 0 {
		keys := make([]string, 0, len(s.Set))
		for k := range s.Set {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		step.Pairs = make([]flow.SetPair, 0, len(keys))
		for _, k := range keys {
			step.Pairs = append(step.Pairs, flow.SetPair{Target: k, Source: s.Set[k]})
		}
	}

	if len(s.Then) > 0 {
		step.Then = buildSteps(s.Then)
	}

	return step
}
