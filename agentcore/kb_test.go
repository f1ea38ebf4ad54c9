package agentcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpflow/convoy/event"
	"github.com/kpflow/convoy/kb"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

type fakeRetriever struct {
	results []kb.SearchResult
	err     error
}

func (f *fakeRetriever) Search(ctx context.Context, collection string, vector []float32, topK int) ([]kb.SearchResult, error) {
	return f.results, f.err
}

func TestKBAgent_StoresTopResultIntoOwnSlots(t *testing.T) {
	tr := newTrackerFor("kb_agent")
	tr.AppendEvent(event.NewUserInput("what are your support hours"))

	a := NewKBAgent("kb_agent", "faq", &fakeEmbedder{vector: []float32{0.1, 0.2}}, &fakeRetriever{
		results: []kb.SearchResult{
			{ID: "doc-1", Score: 0.92, Content: "Support is available 9am-5pm."},
			{ID: "doc-2", Score: 0.5, Content: "Irrelevant passage."},
		},
	})

	result, err := a.Run(context.Background(), tr)
	require.NoError(t, err)
	assert.True(t, result.IsEnd)
	assert.Empty(t, result.Events, "the KB agent stores its result rather than emitting events")

	answer, ok := tr.GetArg("kb_agent", "top_answer")
	require.True(t, ok)
	assert.Equal(t, "Support is available 9am-5pm.", answer)

	score, ok := tr.GetArg("kb_agent", "top_score")
	require.True(t, ok)
	assert.Equal(t, float32(0.92), score)

	source, ok := tr.GetArg("kb_agent", "source")
	require.True(t, ok)
	assert.Equal(t, "doc-1", source)
}

func TestKBAgent_NoResultsLeavesSlotsUnset(t *testing.T) {
	tr := newTrackerFor("kb_agent")
	tr.AppendEvent(event.NewUserInput("something obscure"))

	a := NewKBAgent("kb_agent", "faq", &fakeEmbedder{vector: []float32{0.1}}, &fakeRetriever{})

	result, err := a.Run(context.Background(), tr)
	require.NoError(t, err)
	assert.True(t, result.IsEnd)

	_, ok := tr.GetArg("kb_agent", "top_answer")
	assert.False(t, ok)
}

func TestKBAgent_NoLatestMessageEndsImmediately(t *testing.T) {
	tr := newTrackerFor("kb_agent")

	a := NewKBAgent("kb_agent", "faq", &fakeEmbedder{vector: []float32{0.1}}, &fakeRetriever{
		results: []kb.SearchResult{{ID: "doc-1", Content: "should not be used"}},
	})

	result, err := a.Run(context.Background(), tr)
	require.NoError(t, err)
	assert.True(t, result.IsEnd)
	_, ok := tr.GetArg("kb_agent", "top_answer")
	assert.False(t, ok)
}
