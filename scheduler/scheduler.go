// Package scheduler implements spec §4.1: the priority policy that drives
// the stack-top agent of a session's Tracker until a turn ends, applying
// each emitted event back onto the tracker and routing follow-up agents.
//
// Grounded on the teacher's workflow.ExecutionContext /
// workflow/executor.go dispatch loop: a shared, lock-guarded execution
// context driving named units of work to completion and collecting their
// results, generalized here from "run every ready DAG node once" to "run
// the stack-top agent repeatedly until the turn settles".
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kpflow/convoy/agentcore"
	"github.com/kpflow/convoy/event"
	"github.com/kpflow/convoy/tracker"
)

// InitText is the reserved synthetic user text spec §4.1 step 1 uses to
// let entrypoint-initialization steps speak without waiting for input.
const InitText = "/init"

// Scheduler drives one bot's agent graph across sessions. It holds no
// per-session state itself (that lives in each session's Tracker) and is
// safe to share across all sessions once constructed, per spec §5's
// "Bot graph immutable after construction" shared-resource policy.
type Scheduler struct {
	Agents       map[string]agentcore.Runner
	EntryPoint   string
	TurnDeadline time.Duration // zero means no deadline
	Metrics      *Metrics

	tracer trace.Tracer
	log    *slog.Logger
}

// New builds a Scheduler over agents, entering at entryPoint.
func New(agents map[string]agentcore.Runner, entryPoint string) *Scheduler {
	return &Scheduler{
		Agents:     agents,
		EntryPoint: entryPoint,
		tracer:     otel.Tracer("convoy/scheduler"),
		log:        slog.Default().With("component", "scheduler"),
	}
}

// PredictNextAction implements spec §4.1: drives tr's stack-top agent to
// completion for one turn and returns the accumulated bot response texts.
func (s *Scheduler) PredictNextAction(ctx context.Context, tr *tracker.Tracker) ([]string, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "scheduler.turn", trace.WithAttributes(attribute.String("convoy.entry_point", s.EntryPoint)))
	defer span.End()

	responses, err := s.runTurn(ctx, tr)

	if s.Metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.Metrics.turnsTotal.WithLabelValues(status).Inc()
		s.Metrics.turnDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
	return responses, err
}

func (s *Scheduler) runTurn(ctx context.Context, tr *tracker.Tracker) ([]string, error) {
	if s.TurnDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.TurnDeadline)
		defer cancel()
	}

	if tr.StackEmpty() {
		tr.PushAgent(event.NewCurrentAgent(s.EntryPoint, nil, nil))
	}

	var responses []string
	for {
		top, ok := tr.PeekTopAgent()
		if !ok {
			break
		}

		runner, ok := s.Agents[top.AgentRef]
		if !ok {
			s.log.Error("unknown agent on stack", "agent", top.AgentRef)
			return responses, fmt.Errorf("scheduler: unknown agent %q on stack", top.AgentRef)
		}

		isEnd, err := s.runOne(ctx, tr, top, runner, &responses)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				tr.AppendEvent(event.NewAgentFail(top.AgentRef, map[string]any{"error": err.Error()}))
				return responses, err
			}
			return responses, err
		}

		// An agent variant may change the stack top as a side effect of
		// its own Run (flow's Call step and an Ensemble agent's
		// Fallback/Exit handoff push directly on the tracker, spec §4.1's
		// "CurrentAgent" case only covers explicit events). Comparing the stack top before and after Run catches
		// both that and the explicit-event cases uniformly: a different
		// top always means there's more work this turn.
		newTop, stillRunning := tr.PeekTopAgent()
		topChanged := !stillRunning || newTop.AgentRef != top.AgentRef || newTop.CallSite != top.CallSite
		if isEnd && !topChanged {
			break
		}
		if !stillRunning {
			break
		}
	}
	return responses, nil
}

func (s *Scheduler) runOne(ctx context.Context, tr *tracker.Tracker, top event.Event, runner agentcore.Runner, responses *[]string) (bool, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if s.TurnDeadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.TurnDeadline)
		defer cancel()
	}

	agentStart := time.Now()
	runCtx, span := s.tracer.Start(runCtx, "scheduler.agent_run", trace.WithAttributes(attribute.String("convoy.agent", top.AgentRef)))
	result, err := runner.Run(runCtx, tr)
	span.End()

	if s.Metrics != nil {
		s.Metrics.agentRunsTotal.WithLabelValues(top.AgentRef).Inc()
		s.Metrics.agentRunSeconds.WithLabelValues(top.AgentRef).Observe(time.Since(agentStart).Seconds())
		if err != nil {
			s.Metrics.agentRunErrors.WithLabelValues(top.AgentRef).Inc()
		}
	}
	if err != nil {
		return false, err
	}

	isEnd := result.IsEnd

	for _, ev := range result.Events {
		switch ev.Kind {
		case event.KindBotUtter:
			tr.AppendEvent(ev)
			*responses = append(*responses, tr.Interpolate(ev.Text, ev.Provider))

		case event.KindSetSlot:
			tr.AppendEvent(ev)
			tr.SetArg(ev.Provider, ev.SlotName, ev.Value)

		case event.KindFollowUpAgent:
			tr.AppendEvent(ev)
			tr.PushAgent(event.NewCurrentAgent(ev.NextAgent, nil, nil))

		case event.KindCurrentAgent:
			tr.AppendEvent(ev)
			tr.ReplaceTopAgent(ev)

		case event.KindAgentComplete, event.KindAgentFail:
			tr.AppendEvent(ev)
			popped, ok := tr.PopTopAgent()
			if ok && popped.CallSite != nil {
				tr.FlowInfoFor(popped.CallSite.Flow).SetCallResult(popped.CallSite.Step, ev)
				isEnd = false
			}

		default:
			tr.AppendEvent(ev)
		}
	}

	return isEnd, nil
}
