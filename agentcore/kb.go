package agentcore

import (
	"context"
	"log/slog"

	"github.com/kpflow/convoy/kb"
	"github.com/kpflow/convoy/tracker"
)

// KBAgent performs a retrieval search over the latest user message and
// stores the result into its own tracker slots, rather than emitting
// events directly: spec.md §4.5 step 2 says the ensemble "runs it first
// to obtain retrieval candidates", then reads the result back as part of
// its own prompt-building and its "[FAQ]" branch. Storing into
// Name-scoped tracker args (top_answer/top_score/source) lets the
// ensemble read through the ordinary getArg path instead of KBAgent
// needing to know about ensemble internals.
type KBAgent struct {
	Name       string
	Collection string
	Embedder   kb.Embedder
	Retriever  kb.Retriever
	TopK       int

	log *slog.Logger
}

// NewKBAgent returns a KBAgent with TopK defaulted to 3.
func NewKBAgent(name, collection string, embedder kb.Embedder, retriever kb.Retriever) *KBAgent {
	return &KBAgent{
		Name:       name,
		Collection: collection,
		Embedder:   embedder,
		Retriever:  retriever,
		TopK:       3,
		log:        slog.Default().With("component", "agentcore.kb", "agent", name),
	}
}

// Run implements Runner. It emits no events and always reports IsEnd; the
// ensemble that invoked it decides what to do with the stored result.
func (a *KBAgent) Run(ctx context.Context, tr *tracker.Tracker) (RunResult, error) {
	msg, ok := tr.LatestMessage()
	if !ok || msg.Text == "" {
		return RunResult{IsEnd: true}, nil
	}

	vector, err := a.Embedder.Embed(ctx, msg.Text)
	if err != nil {
		a.logger().Warn("embed failed", "error", err)
		return RunResult{IsEnd: true}, nil
	}

	topK := a.TopK
	if topK <= 0 {
		topK = 3
	}
	results, err := a.Retriever.Search(ctx, a.Collection, vector, topK)
	if err != nil {
		a.logger().Warn("search failed", "error", err)
		return RunResult{IsEnd: true}, nil
	}
	if len(results) == 0 {
		return RunResult{IsEnd: true}, nil
	}

	top := results[0]
	tr.SetArg(a.Name, "top_answer", top.Content)
	tr.SetArg(a.Name, "top_score", top.Score)
	tr.SetArg(a.Name, "source", top.ID)

	return RunResult{IsEnd: true}, nil
}

func (a *KBAgent) logger() *slog.Logger {
	if a.log != nil {
		return a.log
	}
	return slog.Default().With("component", "agentcore.kb", "agent", a.Name)
}
