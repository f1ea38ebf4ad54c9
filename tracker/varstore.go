package tracker

import (
	"fmt"
	"regexp"
	"strings"
)

// reservedUserInput is the reserved arg name that always resolves to the
// current latest message's text, regardless of which agent it is read
// against (spec §4.6).
const reservedUserInput = "_user_input"

// SplitRef splits a reference of the form "agent.arg" or bare "arg" into
// (agent, arg), resolving a bare name against activeAgent (spec §4.6).
func SplitRef(ref, activeAgent string) (agent, arg string) {
	if idx := strings.IndexByte(ref, '.'); idx >= 0 {
		return ref[:idx], ref[idx+1:]
	}
	return activeAgent, ref
}

// GetArg resolves (agent, arg) per spec §4.6: a direct lookup first,
// falling through a __mapping__ binding when the direct value is unset, or
// always for a `ref` binding. Tool-function parameters are read from
// func_args instead of args.
func (t *Tracker) GetArg(agent, arg string) (any, bool) {
	if arg == reservedUserInput {
		msg, ok := t.LatestMessage()
		if !ok {
			return nil, false
		}
		return msg.Text, true
	}

	t.mu.RLock()
	if t.knownFuncs[agent] {
		v, ok := t.funcArgs[agent][arg]
		t.mu.RUnlock()
		return v, ok
	}
	direct, foundDirect := t.args[agent][arg]
	binding, hasBinding := t.mapping[agent][arg]
	t.mu.RUnlock()

	if hasBinding && binding.Kind == MappingRef {
		return t.GetArg(binding.EnsembleAgent, binding.EnsembleArg)
	}
	if direct == nil && hasBinding {
		return t.GetArg(binding.EnsembleAgent, binding.EnsembleArg)
	}
	return direct, foundDirect
}

// SetArg writes value into (agent, arg), per spec §4.6/invariant 5:
// unknown non-underscore agent/arg references are a logged no-op; a `ref`
// binding propagates the write to the bound ensemble slot too (invariant
// 4). Returns whether the write took effect.
func (t *Tracker) SetArg(agent, arg string, value any) bool {
	if agent == "" || arg == "" {
		return false
	}
	underscore := strings.HasPrefix(arg, "_")

	t.mu.Lock()
	defer t.mu.Unlock()

	isFunc := t.knownFuncs[agent]
	isKnownAgent := t.knownAgents[agent]
	if !isFunc && !isKnownAgent && !underscore {
		t.log.Error("setArg on unknown agent/arg is a no-op", "agent", agent, "arg", arg)
		return false
	}

	if isFunc {
		if t.funcArgs[agent] == nil {
			t.funcArgs[agent] = make(map[string]any)
		}
		t.funcArgs[agent][arg] = value
	} else {
		if t.args[agent] == nil {
			t.args[agent] = make(map[string]any)
		}
		t.args[agent][arg] = value
	}

	if binding, ok := t.mapping[agent][arg]; ok && binding.Kind == MappingRef {
		if t.args[binding.EnsembleAgent] == nil {
			t.args[binding.EnsembleAgent] = make(map[string]any)
		}
		t.args[binding.EnsembleAgent][binding.EnsembleArg] = value
	}
	return true
}

// SetMapping registers a __mapping__ entry: calledAgent.localArg is bound
// to binding, resolved at read/write time (spec §9 Design Notes — this
// explicit table replaces the source's sentinel-prefixed nested dict).
func (t *Tracker) SetMapping(calledAgent, localArg string, binding Binding) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mapping[calledAgent] == nil {
		t.mapping[calledAgent] = make(map[string]Binding)
	}
	t.mapping[calledAgent][localArg] = binding

	// A Value binding is a one-shot copy at call time: seed the local slot
	// immediately so subsequent direct reads see it without depending on
	// fallback-through-mapping.
	if binding.Kind == MappingValue {
		if v, ok := t.args[binding.EnsembleAgent][binding.EnsembleArg]; ok {
			if t.args[calledAgent] == nil {
				t.args[calledAgent] = make(map[string]any)
			}
			t.args[calledAgent][localArg] = v
		}
	}
}

// ParseMappingEntry parses one authoring-syntax __mapping__ value: a bare
// "agent.arg" is a Value binding, "ref agent.arg" is a Ref binding (spec
// §3: "Authoring syntax prefixes referenced names with `ref `").
func ParseMappingEntry(raw string) (Binding, bool) {
	raw = strings.TrimSpace(raw)
	kind := MappingValue
	if strings.HasPrefix(raw, refPrefix) {
		kind = MappingRef
		raw = strings.TrimSpace(raw[len(refPrefix):])
	}
	agent, arg := SplitRef(raw, "")
	if agent == "" || arg == "" {
		return Binding{}, false
	}
	return Binding{Kind: kind, EnsembleAgent: agent, EnsembleArg: arg}, true
}

// AllArgs returns a snapshot of every agent's non-underscore argument
// values, for the LLM Agent's "known variable values" prompt section
// (spec §4.3 step 1: "all non-reserved entries in the tracker").
func (t *Tracker) AllArgs() map[string]map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]map[string]any, len(t.args))
	for agent, vars := range t.args {
		for name, v := range vars {
			if strings.HasPrefix(name, "_") {
				continue
			}
			if out[agent] == nil {
				out[agent] = make(map[string]any)
			}
			out[agent][name] = v
		}
	}
	return out
}

var interpolationPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Interpolate replaces every ${arg} / ${agent.arg} placeholder in s with
// its resolved string value, evaluated against activeAgent for bare names.
// Unresolved references become empty strings (spec §4.6).
func (t *Tracker) Interpolate(s, activeAgent string) string {
	return interpolationPattern.ReplaceAllStringFunc(s, func(match string) string {
		ref := match[2 : len(match)-1]
		agent, arg := SplitRef(ref, activeAgent)
		value, found := t.GetArg(agent, arg)
		if !found || value == nil {
			return ""
		}
		return stringify(value)
	})
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
