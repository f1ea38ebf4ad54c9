package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kpflow/convoy/event"
	"github.com/kpflow/convoy/model"
	"github.com/kpflow/convoy/tracker"
)

// stepState is the tag a step execution returns, driving how the
// interpreter advances the runtime stack (spec §4.2 step 4).
type stepState int

const (
	stateFinished stepState = iota
	stateSkip
	stateDo
	stateAwait
	stateFailed
	stateReturn
)

// ToolExecutor is the sandboxed tool-function collaborator a Call step
// dispatches to when its name names a function rather than an agent (spec
// §4.4). Defined narrowly here (rather than importing package toolcall) so
// flow has no dependency on how tools are actually run; package toolcall
// implements this interface structurally.
type ToolExecutor interface {
	IsToolFunction(name string) bool
	Call(ctx context.Context, callerAgent, name string, args map[string]any) ([]event.Event, error)
}

// RunResult is what a Flow Agent's Run reports back to the scheduler for
// one invocation.
type RunResult struct {
	IsEnd  bool
	Events []event.Event
}

// Agent is a Flow Agent instance: a named bundle of subflows plus the
// collaborators its steps may call into (spec §4.2). The teacher's closest
// analogue is workflow.DAGExecutor generalized from a one-shot DAG run to
// a resumable, per-step interpreter driven by FlowInfo.
type Agent struct {
	Name         string
	MainSubflow  string
	Subflows     map[string]*Subflow
	IsMain       bool     // the *main* flow skips the extraction pre-step
	DeclaredArgs []string // arg names this flow extracts on intent transfer
	OtherAgents  []string // names offered to the extraction prompt

	Fallback string // fallback agent name, optional

	Model         model.Adapter // used for extraction and natural-language If/ElseIf
	ModelProvider string

	Tools ToolExecutor

	log *slog.Logger
}

// NewAgent returns a Flow Agent ready to run.
func NewAgent(name, mainSubflow string, subflows map[string]*Subflow) *Agent {
	return &Agent{
		Name:        name,
		MainSubflow: mainSubflow,
		Subflows:    subflows,
		log:         slog.Default().With("component", "flow", "agent", name),
	}
}

// Run executes exactly one step of the flow's current resume point and
// advances the FlowInfo stack for the next invocation (spec §4.2's
// interpreter contract). It is invoked repeatedly by the scheduler until
// is_listen becomes true or the flow terminates.
func (a *Agent) Run(ctx context.Context, tr *tracker.Tracker) (RunResult, error) {
	fi := tr.FlowInfoFor(a.Name)
	var events []event.Event

	if !a.IsMain {
		extracted, quitEvents, err := a.runExtraction(ctx, tr, fi)
		if err != nil {
			a.log.Warn("extraction step failed, treated as no-op", "error", err)
		}
		if extracted && len(quitEvents) > 0 {
			return RunResult{IsEnd: true, Events: quitEvents}, nil
		}
	}

	if fi.Empty() {
		fi.Push(a.entryPath())
	}

	path, ok := fi.Peek()
	if !ok {
		events = append(events, event.NewAgentComplete(a.Name, nil))
		tr.ClearFlowInfo(a.Name)
		return RunResult{IsEnd: true, Events: events}, nil
	}

	step, ok := a.stepAt(path)
	if !ok {
		fi.Pop()
		a.log.Error("dangling runtime path, dropping", "path", path.Key())
		return RunResult{IsEnd: true, Events: events}, nil
	}

	state, stepEvents, err := a.execStep(ctx, tr, fi, path, step)
	if err != nil {
		a.log.Warn("step execution error, treated as no-op", "step", step.ID, "error", err)
		state = stateFinished
	}
	events = append(events, stepEvents...)

	fi.Pop()
	a.advance(fi, path, step, state)

	if fi.Empty() {
		events = append(events, event.NewAgentComplete(a.Name, nil))
		tr.ClearFlowInfo(a.Name)
	}

	isEnd := fi.IsListen || fi.Empty() || state == stateAwait || state == stateReturn
	return RunResult{IsEnd: isEnd, Events: events}, nil
}

func (a *Agent) entryPath() tracker.Path {
	sub := a.Subflows[a.MainSubflow]
	if sub == nil || len(sub.Steps) == 0 {
		return tracker.Path{a.MainSubflow}
	}
	for _, s := range sub.Steps {
		if s.Kind != StepUser {
			return tracker.Path{a.MainSubflow, s.ID}
		}
	}
	return tracker.Path{a.MainSubflow, sub.Steps[0].ID}
}

// ---- step execution -------------------------------------------------------

func (a *Agent) execStep(ctx context.Context, tr *tracker.Tracker, fi *tracker.FlowInfo, path tracker.Path, step *Step) (stepState, []event.Event, error) {
	switch step.Kind {
	case StepBot:
		text := tr.Interpolate(step.Text, a.Name)
		fi.IsListen = false
		return stateFinished, []event.Event{event.NewBotUtter(a.Name, text, nil)}, nil

	case StepUser:
		fi.IsListen = tr.BotUtterSinceLatestMessage()
		return stateFinished, nil, nil

	case StepSet:
		for _, pair := range step.Pairs {
			srcAgent, srcArg := tracker.SplitRef(pair.Source, a.Name)
			value, found := tr.GetArg(srcAgent, srcArg)
			if !found {
				value = pair.Source // treat as a literal
			}
			dstAgent, dstArg := tracker.SplitRef(pair.Target, a.Name)
			tr.SetArg(dstAgent, dstArg, value)
		}
		return stateFinished, nil, nil

	case StepIf, StepElseIf:
		return a.execCondition(ctx, tr, fi, path, step)

	case StepElse:
		count := fi.VisitCount(path.Key())
		if step.Tries > 0 && count >= step.Tries {
			return stateSkip, nil, nil
		}
		fi.Visit(path.Key())
		return stateDo, nil, nil

	case StepLabel:
		return stateFinished, nil, nil

	case StepNext:
		count := fi.VisitCount(path.Key())
		if step.Tries > 0 && count >= step.Tries {
			return stateSkip, nil, nil
		}
		fi.Visit(path.Key())
		return stateDo, nil, nil

	case StepCall:
		return a.execCall(ctx, tr, fi, path, step)

	case StepReturn:
		var ev event.Event
		if step.Status == "success" {
			ev = event.NewAgentComplete(a.Name, map[string]any{"msg": step.Msg})
		} else {
			ev = event.NewAgentFail(a.Name, map[string]any{"msg": step.Msg})
		}
		return stateReturn, []event.Event{ev}, nil
	}

	return stateFinished, nil, fmt.Errorf("flow: unknown step kind %q", step.Kind)
}

func (a *Agent) execCondition(ctx context.Context, tr *tracker.Tracker, fi *tracker.FlowInfo, path tracker.Path, step *Step) (stepState, []event.Event, error) {
	count := fi.VisitCount(path.Key())
	if step.Tries > 0 && count >= step.Tries {
		return stateSkip, nil, nil
	}
	fi.Visit(path.Key())

	matched, err := a.evaluateStatement(ctx, tr, step.Statement)
	if err != nil {
		return stateSkip, nil, err
	}
	if matched {
		return stateDo, nil, nil
	}
	return stateSkip, nil, nil
}

var (
	claimPattern = regexp.MustCompile(`(?is)^\s*the user claims\s+(.+)$`)
	clickPattern = regexp.MustCompile(`(?is)^\s*the user clicks\s+"([^"]+)"\s*$`)
)

func (a *Agent) evaluateStatement(ctx context.Context, tr *tracker.Tracker, statement string) (bool, error) {
	if m := claimPattern.FindStringSubmatch(statement); m != nil {
		return a.classifyClaim(ctx, tr, m[1])
	}
	if m := clickPattern.FindStringSubmatch(statement); m != nil {
		msg, ok := tr.LatestMessage()
		return ok && msg.Text == "/click: "+m[1], nil
	}
	return Eval(statement, resolverFor(tr, a.Name))
}

// resolverFor adapts a Tracker to the evaluator's Resolver interface,
// binding bare (non-dotted) references to activeAgent.
func resolverFor(tr *tracker.Tracker, activeAgent string) Resolver {
	return ResolverFunc(func(ref string) (any, bool) {
		agent, arg := tracker.SplitRef(ref, activeAgent)
		return tr.GetArg(agent, arg)
	})
}

func msgText(tr *tracker.Tracker) string {
	msg, ok := tr.LatestMessage()
	if !ok {
		return ""
	}
	return msg.Text
}

// classifyClaim asks the configured model a yes/no question: does the
// user's latest message match one of the quoted example phrases.
func (a *Agent) classifyClaim(ctx context.Context, tr *tracker.Tracker, quotedOptions string) (bool, error) {
	if a.Model == nil {
		return false, fmt.Errorf("flow: no model configured for natural-language condition")
	}
	var examples []string
	for _, m := range regexp.MustCompile(`"([^"]+)"`).FindAllStringSubmatch(quotedOptions, -1) {
		examples = append(examples, m[1])
	}
	prompt := fmt.Sprintf(
		"Does the user's message match any of these example intents: %s?\nUser message: %q\nReply with exactly True or False.",
		strings.Join(examples, " | "), msgText(tr),
	)
	out, err := a.Model.GenerateMessage(ctx, []model.Message{
		{Role: model.RoleSystem, Content: prompt},
	}, nil, a.ModelProvider)
	if err != nil {
		return false, err
	}
	if len(out) == 0 {
		return false, nil
	}
	return strings.HasPrefix(strings.TrimSpace(strings.ToLower(out[0].Text)), "true"), nil
}

func (a *Agent) execCall(ctx context.Context, tr *tracker.Tracker, fi *tracker.FlowInfo, path tracker.Path, step *Step) (stepState, []event.Event, error) {
	stepKey := path.Key()

	if result, ok := fi.TakeCallResult(stepKey); ok {
		if result.Kind == event.KindAgentFail {
			return stateFailed, nil, nil
		}
		return stateFinished, nil, nil
	}

	resolvedArgs := make(map[string]any, len(step.Args))
	for k, raw := range step.Args {
		refAgent, refArg := tracker.SplitRef(raw, a.Name)
		if v, found := tr.GetArg(refAgent, refArg); found {
			resolvedArgs[k] = v
		} else {
			resolvedArgs[k] = raw
		}
	}

	if a.Tools != nil && a.Tools.IsToolFunction(step.Name) {
		events, err := a.Tools.Call(ctx, a.Name, step.Name, resolvedArgs)
		if err != nil {
			return stateFinished, nil, err
		}
		return stateFinished, events, nil
	}

	for k, v := range resolvedArgs {
		tr.SetArg(step.Name, k, v)
	}
	marker := event.NewCurrentAgent(step.Name, &event.CallSite{Flow: a.Name, Step: stepKey}, nil)
	tr.PushAgent(marker)
	return stateAwait, nil, nil
}

// ---- runtime stack navigation ---------------------------------------------

func (a *Agent) stepAt(path tracker.Path) (*Step, bool) {
	sub, ok := a.Subflows[path.Subflow()]
	if !ok || len(path) < 2 {
		return nil, false
	}
	siblings := sub.Steps
	var cur *Step
	for _, id := range path[1:] {
		idx := indexByID(siblings, id)
		if idx < 0 {
			return nil, false
		}
		cur = &siblings[idx]
		siblings = cur.Then
	}
	return cur, true
}

func (a *Agent) siblingsAt(levelPath tracker.Path) ([]Step, bool) {
	sub, ok := a.Subflows[levelPath.Subflow()]
	if !ok {
		return nil, false
	}
	if len(levelPath) == 1 {
		return sub.Steps, true
	}
	step, ok := a.stepAt(levelPath)
	if !ok {
		return nil, false
	}
	return step.Then, true
}

func (a *Agent) nextSibling(fi *tracker.FlowInfo, path tracker.Path) (tracker.Path, bool) {
	for len(path) >= 2 {
		levelPath := path[:len(path)-1]
		siblings, ok := a.siblingsAt(levelPath)
		if !ok {
			return nil, false
		}
		lastID := path[len(path)-1]
		idx := indexByID(siblings, lastID)
		if idx < 0 {
			return nil, false
		}

		matchKey := "cond_matched:" + path.Key()
		matched, _ := fi.InternalStates[matchKey].(bool)

		for candidate := idx + 1; candidate < len(siblings); candidate++ {
			next := siblings[candidate]
			if matched && (next.Kind == StepElseIf || next.Kind == StepElse) {
				continue
			}
			if next.Kind != StepElseIf && next.Kind != StepElse {
				delete(fi.InternalStates, matchKey)
			}
			return levelPath.WithStep(next.ID), true
		}

		delete(fi.InternalStates, matchKey)
		path = levelPath
	}
	return nil, false
}

func (a *Agent) labelPath(name string) (tracker.Path, bool) {
	for subName, sub := range a.Subflows {
		for _, s := range sub.Steps {
			if s.Kind == StepLabel && s.Name == name {
				return tracker.Path{subName, s.ID}, true
			}
		}
	}
	return nil, false
}

func (a *Agent) advance(fi *tracker.FlowInfo, path tracker.Path, step *Step, state stepState) {
	switch state {
	case stateDo:
		switch step.Kind {
		case StepIf, StepElseIf, StepElse:
			fi.InternalStates["cond_matched:"+path.Key()] = true
			if len(step.Then) > 0 {
				fi.Push(path.WithStep(step.Then[0].ID))
			} else if next, ok := a.nextSibling(fi, path); ok {
				fi.Push(next)
			}
		case StepNext:
			fi.Clear()
			if target, ok := a.labelPath(step.Label); ok {
				fi.Push(target)
			}
		}
	case stateAwait:
		fi.Push(path)
	case stateFailed, stateFinished, stateSkip:
		if next, ok := a.nextSibling(fi, path); ok {
			fi.Push(next)
		}
	case stateReturn:
		fi.Clear()
	}
}

// ---- extraction pre-step (spec §4.2 step 1) -------------------------------

type extractionResult struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
}

func (a *Agent) runExtraction(ctx context.Context, tr *tracker.Tracker, fi *tracker.FlowInfo) (bool, []event.Event, error) {
	msg, ok := tr.LatestMessage()
	if !ok || !msg.Timestamp.After(fi.LastTimeExtract) {
		return false, nil, nil
	}
	fi.LastTimeExtract = msg.Timestamp

	if a.Model == nil {
		return true, nil, nil
	}

	prompt := a.buildExtractionPrompt()
	out, err := a.Model.GenerateMessage(ctx, []model.Message{
		{Role: model.RoleSystem, Content: prompt},
		{Role: model.RoleUser, Content: msg.Text},
	}, nil, a.ModelProvider)
	if err != nil {
		return true, nil, err
	}
	if len(out) == 0 {
		return true, nil, nil
	}

	parsed, ok := ExtractJSON(out[0].Text)
	if !ok {
		return true, nil, nil
	}
	var result extractionResult
	raw, _ := json.Marshal(parsed)
	if err := json.Unmarshal(raw, &result); err != nil {
		return true, nil, err
	}

	for name, value := range result.Data {
		tr.SetArg(a.Name, name, value)
	}

	if result.Status == "quit" {
		events := []event.Event{event.NewAgentFail(a.Name, nil)}
		if a.Fallback != "" {
			// Signal the handoff via an event rather than pushing onto tr
			// directly here: the scheduler applies AgentFail's pop before
			// a later event in the same batch, so a FollowUpAgent queued
			// after AgentFail pushes fallback only once this agent has
			// already been popped — pushing eagerly here would instead
			// leave fallback on top for the scheduler's pop to remove.
			events = append(events, event.NewFollowUpAgent(a.Fallback, a.Name))
		}
		return true, events, nil
	}
	return true, nil, nil
}

func (a *Agent) buildExtractionPrompt() string {
	var b strings.Builder
	b.WriteString("Decide whether the user's latest message is meant for a different agent or signals they want to quit.\n")
	if len(a.OtherAgents) > 0 {
		b.WriteString("Other agents: " + strings.Join(a.OtherAgents, ", ") + "\n")
	}
	if len(a.DeclaredArgs) > 0 {
		b.WriteString("If the message mentions any of these fields, extract them: " + strings.Join(a.DeclaredArgs, ", ") + "\n")
	}
	b.WriteString(`Reply with JSON: {"status":"running"|"quit","data":{...}}`)
	return b.String()
}

// ExtractJSON implements the LLM-reply recovery chain shared by the
// extraction pre-step and the LLM Agent (spec §4.3 step 4): a strict parse,
// then a brace-matching scan for the first balanced JSON object, then
// failure.
func ExtractJSON(text string) (map[string]any, bool) {
	var direct map[string]any
	if err := json.Unmarshal([]byte(text), &direct); err == nil {
		return direct, true
	}

	start := strings.IndexByte(text, '{')
	for start >= 0 {
		depth := 0
		for i := start; i < len(text); i++ {
			switch text[i] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					var candidate map[string]any
					if err := json.Unmarshal([]byte(text[start:i+1]), &candidate); err == nil {
						return candidate, true
					}
					break
				}
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start = start + 1 + next
	}
	return nil, false
}
