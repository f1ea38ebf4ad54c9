package tracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kpflow/convoy/event"
)

func TestStore_GetOrCreateReturnsSameTracker(t *testing.T) {
	store := NewStore([]string{"main_flow"}, nil)

	var seen *Tracker
	store.WithSession("sess-a", func(tr *Tracker) {
		seen = tr
		tr.AppendEvent(event.NewUserInput("hi"))
	})
	store.WithSession("sess-a", func(tr *Tracker) {
		assert.Same(t, seen, tr)
		msg, ok := tr.LatestMessage()
		assert.True(t, ok)
		assert.Equal(t, "hi", msg.Text)
	})

	assert.Equal(t, 1, store.Len())
}

func TestStore_SessionsAreIndependent(t *testing.T) {
	store := NewStore([]string{"main_flow"}, nil)

	store.WithSession("sess-a", func(tr *Tracker) {
		tr.AppendEvent(event.NewUserInput("from a"))
	})
	store.WithSession("sess-b", func(tr *Tracker) {
		tr.AppendEvent(event.NewUserInput("from b"))
	})

	store.WithSession("sess-a", func(tr *Tracker) {
		msg, _ := tr.LatestMessage()
		assert.Equal(t, "from a", msg.Text)
	})
	assert.Equal(t, 2, store.Len())
}

func TestStore_ConcurrentDifferentSessionsDoNotDeadlock(t *testing.T) {
	store := NewStore([]string{"main_flow"}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessionID := "sess-" + string(rune('a'+i%5))
			store.WithSession(sessionID, func(tr *Tracker) {
				tr.AppendEvent(event.NewUserInput("hi"))
			})
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, store.Len(), 5)
}

func TestStore_Delete(t *testing.T) {
	store := NewStore([]string{"main_flow"}, nil)
	store.WithSession("sess-a", func(tr *Tracker) {})
	store.Delete("sess-a")
	assert.Equal(t, 0, store.Len())
}
