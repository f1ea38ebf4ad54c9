package toolcall

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/kpflow/convoy/event"
	"github.com/kpflow/convoy/tracker"
)

// Caller is the flow.ToolExecutor a bot wires into every Flow Agent: a
// name-to-backend registry plus the result-item translation table of spec
// §4.4. It is grounded on the teacher's ToolRegistry (tools/registry.go),
// narrowed from "pluggable Tool interface with Execute" to the two
// operations a Call step actually needs.
type Caller struct {
	mu         sync.RWMutex
	backends   map[string]Executor // tool name -> owning backend
	descriptor map[string]Descriptor
	log        *slog.Logger
}

// NewCaller returns an empty Caller; use RegisterExecutor to populate it.
func NewCaller() *Caller {
	return &Caller{
		backends:   make(map[string]Executor),
		descriptor: make(map[string]Descriptor),
		log:        slog.Default().With("component", "toolcall.caller"),
	}
}

// RegisterExecutor discovers exec's tool functions and binds each name to
// it. A name conflict with an already-registered backend is logged and the
// earlier registration wins, mirroring the teacher's "skip on name
// conflict" discovery behavior in ToolRegistry.DiscoverAllTools.
func (c *Caller) RegisterExecutor(ctx context.Context, exec Executor) error {
	descs, err := exec.Descriptors(ctx)
	if err != nil {
		return fmt.Errorf("toolcall: describe backend: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range descs {
		if _, exists := c.backends[d.Name]; exists {
			c.log.Warn("tool name conflict, keeping first registration", "name", d.Name)
			continue
		}
		c.backends[d.Name] = exec
		c.descriptor[d.Name] = d
	}
	return nil
}

// IsToolFunction reports whether name was registered by some backend,
// satisfying flow.ToolExecutor.
func (c *Caller) IsToolFunction(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.backends[name]
	return ok
}

// Descriptor returns the registered description of name, for attaching
// tool schemas to a model call (spec §4.3 step 2).
func (c *Caller) Descriptor(name string) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.descriptor[name]
	return d, ok
}

// Descriptors returns every registered tool function's description.
func (c *Caller) Descriptors() []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Descriptor, 0, len(c.descriptor))
	for _, d := range c.descriptor {
		out = append(out, d)
	}
	return out
}

// Execute runs name via its backend and returns the raw, untranslated
// result. Exposed alongside Call so the LLM Agent (spec §4.3 step 4) can
// inspect Stdout itself to continue a tool-use loop instead of receiving
// it pre-folded into a BotUtter.
func (c *Caller) Execute(ctx context.Context, name string, kwargs map[string]any) (ExecResult, error) {
	c.mu.RLock()
	backend, ok := c.backends[name]
	c.mu.RUnlock()
	if !ok {
		return ExecResult{}, fmt.Errorf("toolcall: unknown tool function %q", name)
	}
	return backend.ExecuteFunction(ctx, name, kwargs)
}

// Call runs name via its backend and translates the raw result into
// events per spec §4.4, satisfying flow.ToolExecutor.
func (c *Caller) Call(ctx context.Context, callerAgent, name string, args map[string]any) ([]event.Event, error) {
	if !c.IsToolFunction(name) {
		return nil, fmt.Errorf("toolcall: unknown tool function %q", name)
	}
	res, err := c.Execute(ctx, name, args)
	if err != nil {
		return []event.Event{event.NewAgentFail(callerAgent, map[string]any{"error": err.Error()})}, nil
	}

	events := TranslateResult(callerAgent, res)

	if res.Stdout != "" && len(res.Result) == 0 {
		// Non-JSON stdout is fed back as a BotUtter so the calling flow's
		// next step can act on it; spec §4.4 last sentence. The LLM Agent
		// instead calls Execute directly and folds Stdout into its own
		// private history to continue reasoning.
		events = append(events, event.NewBotUtter(callerAgent, res.Stdout, map[string]any{"raw_stdout": true}))
	}

	return events, nil
}

// TranslateResult implements the §4.4 result-item translation table,
// exported so the LLM Agent's tool loop can reuse it after calling
// Execute directly.
func TranslateResult(callerAgent string, res ExecResult) []event.Event {
	var events []event.Event
	for _, raw := range res.Result {
		var item ResultItem
		if err := mapstructure.Decode(raw, &item); err != nil {
			continue
		}
		switch {
		case item.Bot != "":
			events = append(events, event.NewBotUtter(callerAgent, item.Bot, nil))
		case item.Arg != "":
			agent, arg := tracker.SplitRef(item.Arg, callerAgent)
			events = append(events, event.NewSetSlot(arg, item.Value, agent))
		case item.Status == "success":
			events = append(events, event.NewAgentComplete(callerAgent, map[string]any{"msg": item.Msg}))
		case item.Status == "error":
			events = append(events, event.NewAgentFail(callerAgent, map[string]any{"msg": item.Msg}))
		}
	}
	return events
}
