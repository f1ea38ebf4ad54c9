package model

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenEncoding caches the cl100k_base BPE so repeated trims don't pay
// tiktoken's load cost per call, adapted from the teacher's
// pkg/utils/tokens.go encodingCache.
var (
	tokenEncoding     *tiktoken.Tiktoken
	tokenEncodingOnce sync.Once
)

func encoding() *tiktoken.Tiktoken {
	tokenEncodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			tokenEncoding = nil
			return
		}
		tokenEncoding = enc
	})
	return tokenEncoding
}

// countMessageTokens estimates one message's token cost the way the
// teacher's TokenCounter.CountMessages does: a fixed per-message overhead
// plus the BPE-encoded length of role and content.
func countMessageTokens(enc *tiktoken.Tiktoken, msg Message) int {
	const perMessageOverhead = 3 // <|start|>role|message<|end|>
	return perMessageOverhead + len(enc.Encode(string(msg.Role), nil, nil)) + len(enc.Encode(msg.Content, nil, nil))
}

// TrimToTokenBudget drops the oldest of history (a chronological message
// slice, oldest first) until what remains fits within maxTokens, the way
// the teacher's TokenCounter.FitWithinLimit selects from most-recent
// backwards. If tiktoken's encoding can't be loaded, history is returned
// unfit (a missing budget is treated as no budget, not an error: this is
// a context-window courtesy, not a correctness requirement).
func TrimToTokenBudget(history []Message, maxTokens int) []Message {
	if maxTokens <= 0 || len(history) == 0 {
		return history
	}
	enc := encoding()
	if enc == nil {
		return history
	}

	budget := maxTokens
	keepFrom := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := countMessageTokens(enc, history[i])
		if cost > budget {
			break
		}
		budget -= cost
		keepFrom = i
	}
	return history[keepFrom:]
}
