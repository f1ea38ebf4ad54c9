package bot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kpflow/convoy/agentcore"
	"github.com/kpflow/convoy/flow"
	"github.com/kpflow/convoy/kb"
	"github.com/kpflow/convoy/model"
	"github.com/kpflow/convoy/scheduler"
	"github.com/kpflow/convoy/toolcall"
	"github.com/kpflow/convoy/tracker"
)

// Built is the live agent graph produced by Assemble: every agent name
// resolved to a running collaborator, ready to hand to scheduler.New and
// tracker.New.
type Built struct {
	Agents      map[string]agentcore.Runner
	EntryPoint  string
	AgentNames  []string // for tracker.New's knownAgents
	ToolNames   []string // for tracker.New's knownFuncs
	Tools       *toolcall.Caller
	Models      *model.Registry
	Scheduler   *scheduler.Scheduler
}

// Assembler builds a live agent graph from a validated Config, mirroring
// component.ComponentManager's construction sequence: build leaf
// collaborators first (model adapters, tool backends, the KB retriever),
// then the agents that depend on them, then the thing that drives them.
type Assembler struct {
	// KBRetriever/KBEmbedder are supplied by the caller (the qdrant wiring
	// needs a live connection, which Assemble itself must not dial
	// eagerly in tests) rather than constructed from QdrantConfig here.
	// cmd/convo supplies a kb.NewQdrantRetriever dialed from its --qdrant
	// flag; cfg.Qdrant is not read here.
	KBRetriever kb.Retriever
	KBEmbedder  kb.Embedder
}

// Assemble builds the full agent graph. cfg must already be validated
// (bot.Load does this).
func (a *Assembler) Assemble(ctx context.Context, cfg *Config) (*Built, error) {
	models, err := buildModels(cfg.LLMs)
	if err != nil {
		return nil, err
	}

	toolCaller, toolNames, err := a.buildTools(ctx, cfg.Tools)
	if err != nil {
		return nil, err
	}

	agentNames := sortedKeys(cfg.Agents)

	kbName, kbAgent, err := buildKBAgent(cfg, a.KBEmbedder, a.KBRetriever)
	if err != nil {
		return nil, err
	}

	runners := make(map[string]agentcore.Runner, len(cfg.Agents))
	if kbAgent != nil {
		runners[kbName] = kbAgent
	}

	// Flow and LLM agents have no forward references to other agents'
	// live instances (only by name), so they can build in one pass.
	for name, ac := range cfg.Agents {
		switch ac.Type {
		case AgentTypeFlow:
			runners[name] = buildFlowAgent(name, ac, models, toolCaller)
		case AgentTypeLLM:
			runners[name] = buildLLMAgent(name, ac, models, toolCaller)
		}
	}

	// Ensemble agents reference other agents' descriptions and the bot's
	// single KB agent, so they build last.
	for name, ac := range cfg.Agents {
		if ac.Type != AgentTypeEnsemble {
			continue
		}
		runners[name] = buildEnsembleAgent(name, ac, cfg, models, kbAgent)
	}

	sched := scheduler.New(runners, cfg.EntryPoint)
	sched.TurnDeadline = DefaultTurnDeadline

	return &Built{
		Agents:     runners,
		EntryPoint: cfg.EntryPoint,
		AgentNames: agentNames,
		ToolNames:  toolNames,
		Tools:      toolCaller,
		Models:     models,
		Scheduler:  sched,
	}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func buildModels(cfgs map[string]LLMConfig) (*model.Registry, error) {
	registry := model.NewRegistry()
	for name, c := range cfgs {
		adapter, err := buildAdapter(c)
		if err != nil {
			return nil, fmt.Errorf("bot: llm %q: %w", name, err)
		}
		if err := registry.Register(name, adapter); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func buildAdapter(c LLMConfig) (model.Adapter, error) {
	switch c.Type {
	case "openai":
		return model.NewOpenAIAdapter(model.OpenAIConfig{
			APIKey:      c.APIKey,
			Model:       c.Model,
			Host:        c.Host,
			Temperature: c.Temperature,
			MaxTokens:   c.MaxTokens,
		})
	case "anthropic":
		return model.NewAnthropicAdapter(model.AnthropicConfig{
			APIKey:      c.APIKey,
			Model:       c.Model,
			Host:        c.Host,
			Temperature: c.Temperature,
			MaxTokens:   c.MaxTokens,
		})
	case "ollama":
		return model.NewOllamaAdapter(model.OllamaConfig{
			Model:       c.Model,
			Host:        c.Host,
			Temperature: c.Temperature,
		})
	default:
		return nil, fmt.Errorf("unknown llm type %q", c.Type)
	}
}

func (a *Assembler) buildTools(ctx context.Context, cfg ToolsConfig) (*toolcall.Caller, []string, error) {
	caller := toolcall.NewCaller()

	for _, name := range sortedKeys(cfg.Scripts) {
		s := cfg.Scripts[name]
		exec := toolcall.NewScriptExecutor(toolcall.ScriptConfig{
			Interpreter:      s.Interpreter,
			Path:             s.Path,
			WorkingDirectory: s.WorkingDirectory,
			EnableSandboxing: s.EnableSandboxing,
		})
		if err := caller.RegisterExecutor(ctx, exec); err != nil {
			return nil, nil, fmt.Errorf("bot: tool script %q: %w", name, err)
		}
	}

	for _, name := range sortedKeys(cfg.MCP) {
		m := cfg.MCP[name]
		exec := toolcall.NewMCPExecutor(toolcall.MCPConfig{
			Name:    name,
			Command: m.Command,
			Args:    m.Args,
			Env:     m.Env,
		})
		if err := caller.RegisterExecutor(ctx, exec); err != nil {
			return nil, nil, fmt.Errorf("bot: mcp tool %q: %w", name, err)
		}
	}

	names := make([]string, 0)
	for _, d := range caller.Descriptors() {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return caller, names, nil
}

func buildFlowAgent(name string, ac AgentConfig, models *model.Registry, toolCaller *toolcall.Caller) *flow.Agent {
	agent := flow.NewAgent(name, ac.Main, buildSubflows(ac.Subflows))
	agent.IsMain = ac.IsMain
	agent.DeclaredArgs = ac.Args
	agent.OtherAgents = ac.Other
	agent.Fallback = ac.Fallback
	agent.Tools = toolCaller
	if ac.LLM != "" {
		if adapter, err := models.Get(ac.LLM); err == nil {
			agent.Model = adapter
			agent.ModelProvider = ac.LLM
		}
	}
	return agent
}

func buildLLMAgent(name string, ac AgentConfig, models *model.Registry, toolCaller *toolcall.Caller) *agentcore.LLMAgent {
	agent := agentcore.NewLLMAgent(name, ac.Prompt)
	agent.DeclaredArgs = ac.Args
	agent.ToolNames = ac.Uses
	agent.Fallback = ac.Fallback
	agent.Tools = toolCaller
	if ac.LLM != "" {
		if adapter, err := models.Get(ac.LLM); err == nil {
			agent.Model = adapter
			agent.ModelProvider = ac.LLM
		}
	}
	return agent
}

func buildKBAgent(cfg *Config, embedder kb.Embedder, retriever kb.Retriever) (string, *agentcore.KBAgent, error) {
	var kbName string
	var kbConfig AgentConfig
	found := 0
	for name, ac := range cfg.Agents {
		if ac.Type != AgentTypeKB {
			continue
		}
		kbName, kbConfig = name, ac
		found++
	}
	if found == 0 {
		return "", nil, nil
	}
	if found > 1 {
		return "", nil, fmt.Errorf("bot: only one kb agent is supported per bot, found %d", found)
	}
	if embedder == nil || retriever == nil {
		return "", nil, fmt.Errorf("bot: agent %q is a kb agent but no embedder/retriever was supplied", kbName)
	}

	agent := agentcore.NewKBAgent(kbName, kbConfig.Collection, embedder, retriever)
	agent.TopK = kbConfig.TopK
	return kbName, agent, nil
}

func buildEnsembleAgent(name string, ac AgentConfig, cfg *Config, models *model.Registry, kbAgent *agentcore.KBAgent) *agentcore.EnsembleAgent {
	agent := agentcore.NewEnsembleAgent(name)
	agent.Contains = ac.Contains
	agent.Fallback = ac.Fallback
	agent.Exit = ac.Exit
	agent.KB = kbAgent

	agent.Descriptions = make(map[string]string, len(ac.Contains))
	for _, candidate := range ac.Contains {
		if candidateConfig, ok := cfg.Agents[candidate]; ok {
			agent.Descriptions[candidate] = candidateConfig.Description
		}
	}

	for _, key := range sortedKeys(ac.Init) {
		targetAgent, targetArg := tracker.SplitRef(key, name)
		agent.InitSteps = append(agent.InitSteps, agentcore.InitStep{
			Agent: targetAgent,
			Arg:   targetArg,
			Value: ac.Init[key],
		})
	}

	if ac.LLM != "" {
		if adapter, err := models.Get(ac.LLM); err == nil {
			agent.Model = adapter
			agent.ModelProvider = ac.LLM
		}
	}
	return agent
}

// NewTracker builds a Tracker for a fresh session against a built agent
// graph, declaring every agent and tool-function name the graph actually
// has so tracker.IsKnownAgent/IsKnownFunc reflect reality (spec §3
// invariant 2, §4.6 setArg no-op-on-unknown rule).
func NewTracker(built *Built, sessionID string) *tracker.Tracker {
	return tracker.New(sessionID, built.AgentNames, built.ToolNames)
}

// DefaultTurnDeadline is the TurnDeadline Assemble sets on every scheduler
// it builds.
const DefaultTurnDeadline = 30 * time.Second
