// Package session implements the external Session API of spec §6: a
// Manager that holds the installed bots by name, and a Bot wrapping one
// assembled agent graph's scheduler together with its concurrent
// session-id→Tracker map. Grounded on the teacher's agent/registry.go
// registry-of-named-things pattern (the Manager's RWMutex-guarded map of
// bots; the Bot's tracker map is get-or-create rather than get-or-fail).
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/kpflow/convoy/bot"
	"github.com/kpflow/convoy/event"
	"github.com/kpflow/convoy/scheduler"
	"github.com/kpflow/convoy/tracker"
)

// Bot wraps one bot's assembled agent graph and the live trackers of every
// session currently talking to it (spec §5's "tracker store" — an
// in-memory session-id→tracker map supporting concurrent getOrCreate
// without losing writes).
type Bot struct {
	Name string

	built *bot.Built

	mu       sync.Mutex
	trackers map[string]*tracker.Tracker
}

// NewBot wraps an already-assembled agent graph under name.
func NewBot(name string, built *bot.Built) *Bot {
	return &Bot{
		Name:     name,
		built:    built,
		trackers: make(map[string]*tracker.Tracker),
	}
}

// getOrCreate returns sessionID's tracker, creating one on first contact
// per spec §3's Tracker lifecycle ("created on first message from a user
// id and never destroyed within process lifetime"). Per-session critical
// section only: the map lock is held just long enough to find-or-insert,
// never across a turn.
func (b *Bot) getOrCreate(sessionID string) *tracker.Tracker {
	b.mu.Lock()
	defer b.mu.Unlock()
	tr, ok := b.trackers[sessionID]
	if !ok {
		tr = bot.NewTracker(b.built, sessionID)
		b.trackers[sessionID] = tr
	}
	return tr
}

// HandleMessage implements spec §6's Session API: runs one turn of text
// for sessionID to completion and returns the bot's ordered text
// responses. channel is opaque to the core (the gateway's concern per §1)
// and is accepted only so callers don't need a separate entrypoint per
// transport.
func (b *Bot) HandleMessage(ctx context.Context, sessionID, text string, channel string) ([]string, error) {
	tr := b.getOrCreate(sessionID)
	tr.AppendEvent(event.NewUserInput(text))
	return b.built.Scheduler.PredictNextAction(ctx, tr)
}

// Scheduler exposes the underlying scheduler, e.g. for a gateway that
// wants to read metrics directly rather than through HandleMessage.
func (b *Bot) Scheduler() *scheduler.Scheduler {
	return b.built.Scheduler
}

// Manager holds every bot this process serves, keyed by name (spec §6:
// "bots / getBot(name) on the manager; load(name, ...) to install a
// bot"). Safe for concurrent use: the bot map is guarded by an RWMutex and
// each installed Bot's graph is immutable after Load per spec §5's "bot
// graph immutable after construction" policy, so reads never race with a
// concurrent Load of a *different* name; Load of
// the *same* name while sessions are live against the old one is the
// caller's responsibility to sequence (a hot-swap is out of scope).
type Manager struct {
	mu   sync.RWMutex
	bots map[string]*Bot
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{bots: make(map[string]*Bot)}
}

// Load parses, validates, and assembles a bot-package document and
// installs the result under name, replacing any prior bot of that name.
func (m *Manager) Load(ctx context.Context, name string, data []byte, asm *bot.Assembler) (*Bot, error) {
	cfg, err := bot.Load(data)
	if err != nil {
		return nil, fmt.Errorf("session: load bot %q: %w", name, err)
	}

	built, err := asm.Assemble(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("session: assemble bot %q: %w", name, err)
	}

	b := NewBot(name, built)

	m.mu.Lock()
	m.bots[name] = b
	m.mu.Unlock()
	return b, nil
}

// GetBot returns the installed bot under name, if any.
func (m *Manager) GetBot(name string) (*Bot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bots[name]
	return b, ok
}

// Bots lists every installed bot's name.
func (m *Manager) Bots() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.bots))
	for name := range m.bots {
		names = append(names, name)
	}
	return names
}
