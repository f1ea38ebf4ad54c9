package agentcore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kpflow/convoy/event"
	"github.com/kpflow/convoy/flow"
	"github.com/kpflow/convoy/model"
	"github.com/kpflow/convoy/toolcall"
	"github.com/kpflow/convoy/tracker"
)

// defaultMaxToolDepth bounds the tool-use recursion of spec §4.3 step 4 /
// §7's "tool-use recursion bounded to 8 nested calls".
const defaultMaxToolDepth = 8

// defaultMaxHistoryTokens bounds how much of an agent's private
// conversation log rides along on each model call, adapted from the
// teacher's TokenCounter.FitWithinLimit (pkg/utils/tokens.go) trimming
// history to a token budget rather than a raw message count.
const defaultMaxHistoryTokens = 3000

// maxConcurrentToolCalls bounds how many function calls requested in a
// single model turn run at once, the way the teacher's
// workflowagent.runParallel bounds sub-agent fan-out with errgroup.
const maxConcurrentToolCalls = 4

// LLMAgent implements spec §4.3: a single prompt-driven agent that may
// extract declared args, call tool functions, and signal quit/complete via
// a small JSON protocol in its reply. Grounded on the teacher's
// reasoning.AgentServices split (LLM/Tools/Prompt/History as separate
// seams) adapted from a multi-iteration ReAct loop to §4.3's one-call,
// JSON-protocol turn.
type LLMAgent struct {
	Name             string
	Prompt           string   // fixed instructions text
	DeclaredArgs     []string // arg names this agent may extract
	ToolNames        []string // "uses": tool function names this agent may call
	Fallback         string   // agent name to push when the model signals quit
	Model            model.Adapter
	ModelProvider    string
	Tools            *toolcall.Caller
	MaxToolDepth     int
	MaxHistoryTokens int // 0 uses defaultMaxHistoryTokens

	log *slog.Logger
}

// NewLLMAgent returns an LLMAgent with MaxToolDepth/MaxHistoryTokens defaulted.
func NewLLMAgent(name, prompt string) *LLMAgent {
	return &LLMAgent{
		Name:             name,
		Prompt:           prompt,
		MaxToolDepth:     defaultMaxToolDepth,
		MaxHistoryTokens: defaultMaxHistoryTokens,
		log:              slog.Default().With("component", "agentcore.llm", "agent", name),
	}
}

func (a *LLMAgent) logger() *slog.Logger {
	if a.log != nil {
		return a.log
	}
	return slog.Default().With("component", "agentcore.llm", "agent", a.Name)
}

// Run implements Runner.
func (a *LLMAgent) Run(ctx context.Context, tr *tracker.Tracker) (RunResult, error) {
	messages := a.buildMessages(tr)
	return a.step(ctx, tr, messages, 0)
}

// step performs one model call and, if it returns a FunctionCall whose
// stdout must feed back into reasoning, recurses — bounded by
// MaxToolDepth per spec §7.
func (a *LLMAgent) step(ctx context.Context, tr *tracker.Tracker, messages []model.Message, depth int) (RunResult, error) {
	if depth >= a.maxDepth() {
		a.logger().Warn("tool-use recursion depth exceeded, ending turn", "depth", depth)
		return RunResult{IsEnd: true}, nil
	}

	out, err := a.Model.GenerateMessage(ctx, messages, a.toolDefs(), a.ModelProvider)
	if err != nil {
		return RunResult{IsEnd: true, Events: []event.Event{event.NewAgentFail(a.Name, map[string]any{"error": err.Error()})}}, nil
	}

	var functionCalls []model.GeneratedEvent
	var textReply string
	var hasText bool
	for _, ge := range out {
		if ge.IsFunctionCall {
			functionCalls = append(functionCalls, ge)
			continue
		}
		if !hasText {
			textReply, hasText = ge.Text, true
		}
	}

	if len(functionCalls) > 0 {
		events, recurseMessages, err := a.dispatchTools(ctx, tr, functionCalls)
		if err != nil {
			return RunResult{IsEnd: true}, err
		}
		if len(recurseMessages) > 0 {
			next := append(append([]model.Message{}, messages...), recurseMessages...)
			nested, err := a.step(ctx, tr, next, depth+1)
			nested.Events = append(events, nested.Events...)
			return nested, err
		}
		if hasText {
			replyEvents, isEnd := a.handleTextReply(tr, textReply)
			return RunResult{IsEnd: isEnd, Events: append(events, replyEvents...)}, nil
		}
		return RunResult{IsEnd: true, Events: events}, nil
	}

	if hasText {
		replyEvents, isEnd := a.handleTextReply(tr, textReply)
		return RunResult{IsEnd: isEnd, Events: replyEvents}, nil
	}

	return RunResult{IsEnd: true}, nil
}

// dispatchTools runs every function call the model requested in one turn
// concurrently, bounded by maxConcurrentToolCalls via errgroup the way the
// teacher's workflowagent.runParallel fans sub-agents out, then folds the
// results back in call order so history/events stay deterministic
// regardless of which goroutine finishes first.
func (a *LLMAgent) dispatchTools(ctx context.Context, tr *tracker.Tracker, calls []model.GeneratedEvent) ([]event.Event, []model.Message, error) {
	type outcome struct {
		events  []event.Event
		message *model.Message
	}
	outcomes := make([]outcome, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentToolCalls)
	for i, ge := range calls {
		i, ge := i, ge
		g.Go(func() error {
			events, msgs, _, err := a.dispatchTool(gctx, tr, ge)
			if err != nil {
				return err
			}
			o := outcome{events: events}
			if len(msgs) > 0 {
				o.message = &msgs[0]
			}
			outcomes[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var events []event.Event
	var messages []model.Message
	for _, o := range outcomes {
		events = append(events, o.events...)
		if o.message != nil {
			messages = append(messages, *o.message)
		}
	}
	return events, messages, nil
}

// dispatchTool runs one requested FunctionCall, returning the events it
// produced and, if its stdout needs feeding back into the conversation,
// the extra messages to append before recursing.
func (a *LLMAgent) dispatchTool(ctx context.Context, tr *tracker.Tracker, ge model.GeneratedEvent) ([]event.Event, []model.Message, bool, error) {
	if a.Tools == nil || !a.Tools.IsToolFunction(ge.FunctionName) {
		return []event.Event{event.NewAgentFail(a.Name, map[string]any{"error": "unknown tool " + ge.FunctionName})}, nil, false, nil
	}

	res, err := a.Tools.Execute(ctx, ge.FunctionName, ge.Args)
	if err != nil {
		return []event.Event{event.NewAgentFail(a.Name, map[string]any{"error": err.Error()})}, nil, false, nil
	}

	events := toolcall.TranslateResult(a.Name, res)

	if res.Stdout == "" {
		return events, nil, false, nil
	}

	tr.AppendHistory(a.Name, string(model.RoleTool), res.Stdout)
	toolMsg := model.Message{Role: model.RoleTool, Content: res.Stdout, ToolCallID: ge.CallID}
	return events, []model.Message{toolMsg}, true, nil
}

// llmReply is the §4.3 step 4 JSON protocol an LLM Agent's text reply may
// carry.
type llmReply struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
	Bot    string         `json:"bot"`
}

// handleTextReply implements spec §4.3 step 4 for a plain-text model
// reply: strict JSON, then brace-match recovery, then raw text as a bot
// utterance (flow.ExtractJSON implements the shared recovery chain).
func (a *LLMAgent) handleTextReply(tr *tracker.Tracker, text string) ([]event.Event, bool) {
	parsed, ok := flow.ExtractJSON(text)
	if !ok {
		tr.AppendHistory(a.Name, string(model.RoleAssistant), text)
		return []event.Event{event.NewBotUtter(a.Name, text, nil)}, true
	}

	reply := decodeReply(parsed)
	for name, value := range reply.Data {
		tr.SetArg(a.Name, name, value)
	}

	var events []event.Event
	if reply.Bot != "" {
		events = append(events, event.NewBotUtter(a.Name, reply.Bot, nil))
		tr.AppendHistory(a.Name, string(model.RoleAssistant), reply.Bot)
	}

	switch reply.Status {
	case "quit":
		events = append(events, event.NewAgentFail(a.Name, nil))
		if a.Fallback != "" {
			// The fallback push must happen via an event the scheduler
			// applies *after* it pops this agent for AgentFail, not by
			// mutating the stack here: pushing now would put fallback on
			// top before the scheduler's AgentFail handling runs, so its
			// PopTopAgent would pop fallback instead of this agent.
			events = append(events, event.NewFollowUpAgent(a.Fallback, a.Name))
		}
		return events, false
	case "complete":
		events = append(events, event.NewAgentComplete(a.Name, nil))
		tr.ClearHistory(a.Name)
		return events, true
	default:
		return events, true
	}
}

func decodeReply(parsed map[string]any) llmReply {
	var r llmReply
	if status, ok := parsed["status"].(string); ok {
		r.Status = status
	}
	if bot, ok := parsed["bot"].(string); ok {
		r.Bot = bot
	}
	if data, ok := parsed["data"].(map[string]any); ok {
		r.Data = data
	}
	return r
}

// buildMessages assembles the system prompt of spec §4.3 step 1 plus the
// per-agent private history and the latest user message, prefixing an
// interruption-resume marker when the history's last turn doesn't match
// the latest public bot utterance.
func (a *LLMAgent) buildMessages(tr *tracker.Tracker) []model.Message {
	messages := []model.Message{{Role: model.RoleSystem, Content: a.buildSystemPrompt(tr)}}

	budget := a.MaxHistoryTokens
	if budget == 0 {
		budget = defaultMaxHistoryTokens
	}
	var historyMessages []model.Message
	for _, h := range tr.History(a.Name) {
		historyMessages = append(historyMessages, model.Message{Role: model.Role(h.Role), Content: h.Content})
	}
	messages = append(messages, model.TrimToTokenBudget(historyMessages, budget)...)

	userText := msgText(tr)
	if a.isInterruptionResume(tr) {
		userText = "[Resuming after interruption] " + userText
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: userText})
	tr.AppendHistory(a.Name, string(model.RoleUser), userText)
	return messages
}

func (a *LLMAgent) isInterruptionResume(tr *tracker.Tracker) bool {
	hist := tr.History(a.Name)
	if len(hist) == 0 {
		return false
	}
	last := hist[len(hist)-1]
	if last.Role != string(model.RoleAssistant) {
		return false
	}
	lastEvent, ok := tr.LastEvent()
	return !ok || lastEvent.Kind != event.KindBotUtter || lastEvent.Text != last.Content
}

func (a *LLMAgent) buildSystemPrompt(tr *tracker.Tracker) string {
	var b strings.Builder
	b.WriteString(a.Prompt)
	b.WriteString("\n\n")

	if vars := tr.AllArgs(); len(vars) > 0 {
		b.WriteString("Known variables:\n")
		for agent, kv := range vars {
			for k, v := range kv {
				fmt.Fprintf(&b, "  %s.%s = %v\n", agent, k, v)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Respond strictly according to these instructions. ")
	b.WriteString(`If the user's intent is unrelated to this agent, reply with {"status":"quit"}. `)
	b.WriteString(`If your task is complete, reply with {"status":"complete"}. `)
	if len(a.DeclaredArgs) > 0 {
		fmt.Fprintf(&b, `Otherwise extract any of these fields you can (%s) and reply with `, strings.Join(a.DeclaredArgs, ", "))
		b.WriteString(`{"data":{...},"bot":"...","status":"running"}.`)
	} else {
		b.WriteString(`Otherwise reply with {"bot":"...","status":"running"}.`)
	}
	return b.String()
}

func (a *LLMAgent) toolDefs() []model.ToolDefinition {
	if a.Tools == nil || len(a.ToolNames) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(a.ToolNames))
	for _, n := range a.ToolNames {
		allowed[n] = true
	}

	var defs []model.ToolDefinition
	for _, d := range a.Tools.Descriptors() {
		if !allowed[d.Name] {
			continue
		}
		required := make(map[string]bool, len(d.Required))
		for _, r := range d.Required {
			required[r] = true
		}
		var params []model.ToolParameter
		for _, arg := range d.Args {
			params = append(params, model.ToolParameter{
				Name:        arg.Name,
				Type:        arg.Type,
				Description: arg.Description,
				Required:    required[arg.Name],
			})
		}
		defs = append(defs, model.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: params})
	}
	return defs
}

func (a *LLMAgent) maxDepth() int {
	if a.MaxToolDepth > 0 {
		return a.MaxToolDepth
	}
	return defaultMaxToolDepth
}

func msgText(tr *tracker.Tracker) string {
	msg, ok := tr.LatestMessage()
	if !ok {
		return ""
	}
	return msg.Text
}
