package tracker

import "sync"

// Store holds one Tracker per session id, creating it lazily on first
// touch and serializing each session's turns behind its own lock so two
// goroutines can never run the same session concurrently (spec §5: "a
// session is processed by a single writer at a time; concurrent sessions
// do not block each other").
type Store struct {
	mu       sync.Mutex
	sessions map[string]*sessionSlot

	knownAgents []string
	knownFuncs  []string
}

type sessionSlot struct {
	mu      sync.Mutex
	tracker *Tracker
}

// NewStore returns an empty session Store. knownAgents/knownFuncs are
// forwarded to every Tracker it creates.
func NewStore(knownAgents, knownFuncs []string) *Store {
	return &Store{
		sessions:    make(map[string]*sessionSlot),
		knownAgents: knownAgents,
		knownFuncs:  knownFuncs,
	}
}

// WithSession runs fn with exclusive access to sessionID's Tracker,
// creating it on first use. Two calls for the same session never overlap;
// calls for different sessions run concurrently.
func (s *Store) WithSession(sessionID string, fn func(*Tracker)) {
	slot := s.getOrCreate(sessionID)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	fn(slot.tracker)
}

func (s *Store) getOrCreate(sessionID string) *sessionSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.sessions[sessionID]
	if !ok {
		slot = &sessionSlot{tracker: New(sessionID, s.knownAgents, s.knownFuncs)}
		s.sessions[sessionID] = slot
	}
	return slot
}

// Delete drops a session's Tracker entirely, freeing its state.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len reports how many sessions are currently tracked.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
