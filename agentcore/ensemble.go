package agentcore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kpflow/convoy/event"
	"github.com/kpflow/convoy/model"
	"github.com/kpflow/convoy/tracker"
)

// InitStep is one declarative assignment an Ensemble Agent runs once per
// session, before any candidate routing (spec §4.5 step 1).
type InitStep struct {
	Agent string
	Arg   string
	Value any
}

// EnsembleAgent implements spec §4.5: it routes a turn to one of several
// candidate agents by asking the model to pick among their descriptions,
// rather than interpreting a flow program or reasoning with tools itself.
// Grounded on the teacher's team package (intent/supervisor routing over
// named sub-agents), adapted from "route once at session start" to "route
// every turn, tracking who has already answered".
type EnsembleAgent struct {
	Name          string
	Contains      []string
	Descriptions  map[string]string
	InitSteps     []InitStep
	Fallback      string
	Exit          string
	KB            *KBAgent
	Model         model.Adapter
	ModelProvider string

	log *slog.Logger
}

// NewEnsembleAgent returns an EnsembleAgent ready to have its fields set.
func NewEnsembleAgent(name string) *EnsembleAgent {
	return &EnsembleAgent{
		Name:         name,
		Descriptions: make(map[string]string),
		log:          slog.Default().With("component", "agentcore.ensemble", "agent", name),
	}
}

func (a *EnsembleAgent) logger() *slog.Logger {
	if a.log != nil {
		return a.log
	}
	return slog.Default().With("component", "agentcore.ensemble", "agent", a.Name)
}

// Run implements Runner.
func (a *EnsembleAgent) Run(ctx context.Context, tr *tracker.Tracker) (RunResult, error) {
	a.runInitStepsOnce(tr)

	var kbAnswer string
	if a.KB != nil {
		if _, err := a.KB.Run(ctx, tr); err != nil {
			a.logger().Warn("kb run failed", "error", err)
		}
		if v, ok := tr.GetArg(a.KB.Name, "top_answer"); ok {
			if s, ok := v.(string); ok {
				kbAnswer = s
			}
		}
	}

	remaining := a.remainingCandidates(tr)
	if len(remaining) == 0 && kbAnswer == "" {
		return RunResult{IsEnd: true}, nil
	}

	prompt := a.buildSelectionPrompt(tr, remaining, kbAnswer)
	out, err := a.Model.GenerateMessage(ctx, []model.Message{{Role: model.RoleUser, Content: prompt}}, nil, a.ModelProvider)
	if err != nil {
		return RunResult{IsEnd: true, Events: []event.Event{event.NewAgentFail(a.Name, map[string]any{"error": err.Error()})}}, nil
	}

	reply := ""
	if len(out) > 0 {
		reply = strings.TrimSpace(out[0].Text)
	}

	return a.interpretReply(tr, reply, remaining, kbAnswer), nil
}

// runInitStepsOnce executes InitSteps exactly once per session, tracked
// via an underscore-prefixed flag (always-writable per tracker invariant
// 5, spec §3).
func (a *EnsembleAgent) runInitStepsOnce(tr *tracker.Tracker) {
	if _, done := tr.GetArg(a.Name, "_ensemble_initialized"); done {
		return
	}
	for _, step := range a.InitSteps {
		tr.SetArg(step.Agent, step.Arg, step.Value)
	}
	tr.SetArg(a.Name, "_ensemble_initialized", true)
}

// remainingCandidates implements spec §4.5 step 3: Contains minus
// candidates that have already reported AgentComplete/AgentFail since the
// latest user input.
func (a *EnsembleAgent) remainingCandidates(tr *tracker.Tracker) []string {
	events := tr.Events()
	lastUserIdx := -1
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == event.KindUserInput {
			lastUserIdx = i
			break
		}
	}

	reported := make(map[string]bool)
	for _, ev := range events[lastUserIdx+1:] {
		if ev.Kind == event.KindAgentComplete || ev.Kind == event.KindAgentFail {
			reported[ev.Provider] = true
		}
	}

	var remaining []string
	for _, c := range a.Contains {
		if !reported[c] {
			remaining = append(remaining, c)
		}
	}
	return remaining
}

func (a *EnsembleAgent) buildSelectionPrompt(tr *tracker.Tracker, remaining []string, kbAnswer string) string {
	var b strings.Builder
	b.WriteString("Choose which agent should handle the user's message.\n\nCandidates:\n")
	for _, c := range remaining {
		desc := a.Descriptions[c]
		fmt.Fprintf(&b, "- %s: %s\n", c, desc)
	}

	candidateSet := make(map[string]bool, len(remaining))
	for _, c := range remaining {
		candidateSet[c] = true
	}
	b.WriteString("\nKnown variables:\n")
	for agent, vars := range tr.AllArgs() {
		if !candidateSet[agent] {
			continue
		}
		for k, v := range vars {
			fmt.Fprintf(&b, "  %s.%s = %v\n", agent, k, v)
		}
	}

	if msg, ok := tr.LatestMessage(); ok {
		fmt.Fprintf(&b, "\nUser message: %s\n", msg.Text)
	}

	b.WriteString("\nReply with exactly one line: an agent name from the candidates above")
	if kbAnswer != "" {
		b.WriteString(", \"[FAQ]\" to answer directly from the retrieved knowledge-base passage")
	}
	if a.Fallback != "" {
		b.WriteString(", \"[Fallback]\" if none of the candidates fit")
	}
	if a.Exit != "" {
		b.WriteString(", \"[Exit]\" if the user wants to end the conversation")
	}
	b.WriteString(", or \"None\" if nothing applies yet.")
	return b.String()
}

func (a *EnsembleAgent) interpretReply(tr *tracker.Tracker, reply string, remaining []string, kbAnswer string) RunResult {
	switch {
	case reply == "[FAQ]":
		return RunResult{IsEnd: true, Events: []event.Event{event.NewBotUtter(a.Name, kbAnswer, nil)}}

	case reply == "[Fallback]" && a.Fallback != "":
		tr.PushAgent(event.NewCurrentAgent(a.Fallback, nil, nil))
		return RunResult{IsEnd: false}

	case reply == "[Exit]" && a.Exit != "":
		tr.PushAgent(event.NewCurrentAgent(a.Exit, nil, nil))
		return RunResult{IsEnd: false}

	case reply == "None" || reply == "":
		if tr.BotUtterSinceLatestMessage() || a.Fallback == "" {
			return RunResult{IsEnd: true}
		}
		tr.PushAgent(event.NewCurrentAgent(a.Fallback, nil, nil))
		return RunResult{IsEnd: false}
	}

	for _, c := range remaining {
		if reply == c || strings.Contains(reply, c) {
			return RunResult{IsEnd: true, Events: []event.Event{event.NewFollowUpAgent(c, a.Name)}}
		}
	}

	a.logger().Warn("ensemble selection reply matched nothing", "reply", reply)
	return RunResult{IsEnd: true}
}
