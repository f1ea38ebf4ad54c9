// Package agentcore implements the non-Flow agent variants of spec
// §§4.3-4.5 (LLM, Ensemble, KB) sharing the single-turn Run contract the
// scheduler drives every agent through. The Flow variant is package flow's
// *Agent itself, which already satisfies Runner by signature.
//
// Grounded on the teacher's reasoning package: AgentServices' focused
// service-interface split (LLMService/ToolService/ContextService) is
// reused as the seams an agent variant depends on (model.Adapter,
// toolcall.Caller, kb.Retriever) rather than one fat dependency struct.
package agentcore

import (
	"context"

	"github.com/kpflow/convoy/flow"
	"github.com/kpflow/convoy/tracker"
)

// RunResult is shared with package flow: every agent variant reports the
// same (is_end, events) shape back to the scheduler (spec §4.1).
type RunResult = flow.RunResult

// Runner is the single-turn contract every agent variant satisfies.
// *flow.Agent already implements this by signature.
type Runner interface {
	Run(ctx context.Context, tr *tracker.Tracker) (RunResult, error)
}

var _ Runner = (*flow.Agent)(nil)
