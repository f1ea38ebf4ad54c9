// Package bot implements the bot assembler of spec §6: it turns a parsed
// bot-package description (agents, their types, their type-specific
// fields, and a top-level config block) into a live agent graph the
// scheduler can drive. Grounded on the teacher's config/types.go
// (AgentConfig/WorkflowConfig Validate/SetDefaults idiom) and
// component/manager.go (ComponentManager's registry-aggregation
// construction sequence).
package bot

import "fmt"

// AgentType discriminates the four agent variants a bot-package entry may
// declare (spec §6).
type AgentType string

const (
	AgentTypeFlow     AgentType = "flow agent"
	AgentTypeLLM      AgentType = "llm agent"
	AgentTypeEnsemble AgentType = "ensemble agent"
	AgentTypeKB       AgentType = "kb agent"
)

// StepConfig is one authored step, the YAML-facing mirror of flow.Step.
// Only the fields relevant to Kind are populated; Then nests recursively
// for if/elseif/else branches exactly as the teacher's WorkflowConfig step
// list nests sub-steps.
type StepConfig struct {
	ID   string `yaml:"id,omitempty"`
	Kind string `yaml:"kind"`

	Bot string `yaml:"bot,omitempty"`

	Set map[string]string `yaml:"set,omitempty"`

	If    string `yaml:"if,omitempty"`
	Tries int    `yaml:"tries,omitempty"`
	Then  []StepConfig `yaml:"then,omitempty"`

	Next string `yaml:"next,omitempty"`

	Label string            `yaml:"label,omitempty"`
	Call  string            `yaml:"call,omitempty"`
	Args  map[string]string `yaml:"args,omitempty"`

	Return string `yaml:"return,omitempty"` // "success" | "fail"
	Msg    string `yaml:"msg,omitempty"`
}

// AgentConfig is one bot-package agent declaration (spec §6): a single
// struct carrying every variant's optional fields, mirroring the
// teacher's AgentConfig/WorkflowConfig "one struct, many optional
// sections" shape rather than a Go interface hierarchy, since agents are
// authored as YAML data.
type AgentConfig struct {
	Type AgentType `yaml:"type"`

	Description string `yaml:"description,omitempty"`

	// Flow agent.
	Main     string                  `yaml:"main,omitempty"`
	Subflows map[string][]StepConfig `yaml:"subflows,omitempty"`
	IsMain   bool                    `yaml:"is_main,omitempty"`
	Args     []string                `yaml:"args,omitempty"`
	Other    []string                `yaml:"other,omitempty"`

	// LLM agent.
	Prompt string   `yaml:"prompt,omitempty"`
	Uses   []string `yaml:"uses,omitempty"`

	// Ensemble agent.
	Contains []string          `yaml:"contains,omitempty"`
	Init     map[string]any    `yaml:"init,omitempty"`

	// KB agent.
	FAQ        string `yaml:"faq,omitempty"`
	File       string `yaml:"file,omitempty"`
	Web        string `yaml:"web,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	TopK       int    `yaml:"top_k,omitempty"`

	// Shared references.
	Fallback string `yaml:"fallback,omitempty"`
	Exit     string `yaml:"exit,omitempty"`
	LLM      string `yaml:"llm,omitempty"` // name into Config.LLMs
}

func (a *AgentConfig) setDefaults() {
	if a.Type == AgentTypeFlow && a.Main == "" {
		a.Main = "main"
	}
	if a.Type == AgentTypeKB && a.TopK <= 0 {
		a.TopK = 3
	}
}

func (a *AgentConfig) validate(name string) error {
	switch a.Type {
	case AgentTypeFlow:
		if len(a.Subflows) == 0 {
			return fmt.Errorf("bot: agent %q: flow agent needs at least one subflow", name)
		}
		if _, ok := a.Subflows[a.Main]; !ok {
			return fmt.Errorf("bot: agent %q: main subflow %q not declared", name, a.Main)
		}
	case AgentTypeLLM:
		if a.Prompt == "" {
			return fmt.Errorf("bot: agent %q: llm agent needs a prompt", name)
		}
	case AgentTypeEnsemble:
		if len(a.Contains) == 0 {
			return fmt.Errorf("bot: agent %q: ensemble agent needs at least one candidate in contains", name)
		}
	case AgentTypeKB:
		if a.Collection == "" {
			return fmt.Errorf("bot: agent %q: kb agent needs a collection", name)
		}
	default:
		return fmt.Errorf("bot: agent %q: unknown type %q", name, a.Type)
	}
	return nil
}

// LLMConfig names one model-provider instance a bot can reference from an
// agent's `llm` field, mirroring config/types.go's LLMProviderConfig
// (Type/Model/APIKey/Host/Temperature/MaxTokens/Timeout, per-provider
// Validate/SetDefaults).
type LLMConfig struct {
	Type        string  `yaml:"type"` // "openai" | "anthropic" | "ollama"
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key,omitempty"`
	Host        string  `yaml:"host,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Provider    string  `yaml:"provider,omitempty"` // parsed but not read; agents pass their llm entry name as the provider
}

func (c *LLMConfig) validate(name string) error {
	if c.Type == "" {
		return fmt.Errorf("bot: llm %q: type is required", name)
	}
	if c.Model == "" {
		return fmt.Errorf("bot: llm %q: model is required", name)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("bot: llm %q: temperature must be in [0,2]", name)
	}
	if c.Type == "openai" && c.APIKey == "" {
		return fmt.Errorf("bot: llm %q: api_key is required for openai", name)
	}
	if c.Type == "anthropic" && c.APIKey == "" {
		return fmt.Errorf("bot: llm %q: api_key is required for anthropic", name)
	}
	return nil
}

// ScriptToolConfig configures the sandboxed-script tool backend (spec §6
// "Tool script: opaque text handed to the sandboxed executor").
type ScriptToolConfig struct {
	Interpreter      string `yaml:"interpreter,omitempty"`
	Path             string `yaml:"path"`
	WorkingDirectory string `yaml:"working_directory,omitempty"`
	EnableSandboxing bool   `yaml:"enable_sandboxing,omitempty"`
}

// MCPToolConfig configures one MCP-backed tool server.
type MCPToolConfig struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// ToolsConfig aggregates every tool-function backend a bot wires into its
// toolcall.Caller.
type ToolsConfig struct {
	Scripts map[string]ScriptToolConfig `yaml:"scripts,omitempty"`
	MCP     map[string]MCPToolConfig    `yaml:"mcp,omitempty"`
}

// QdrantConfig configures the KB agent's vector-store collaborator.
type QdrantConfig struct {
	Host   string `yaml:"host,omitempty"`
	Port   int    `yaml:"port,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`
	UseTLS bool   `yaml:"use_tls,omitempty"`
}

// Config is the root bot-package document of spec §6: agent declarations
// plus the `{llm_config?, bot_name?, unsafe_mode?}` config block. Channel
// tokens (facebook/slack) are accepted but opaque to the core — they are
// the gateway's concern, not this package's.
type Config struct {
	BotName    string                 `yaml:"bot_name,omitempty"`
	EntryPoint string                 `yaml:"entry_point"`
	UnsafeMode bool                   `yaml:"unsafe_mode,omitempty"`
	Agents     map[string]AgentConfig `yaml:"agents"`
	LLMs       map[string]LLMConfig   `yaml:"llms,omitempty"`
	Tools      ToolsConfig            `yaml:"tools,omitempty"`
	Qdrant     QdrantConfig           `yaml:"qdrant,omitempty"`
}

// SetDefaults fills in every sub-config's defaults, mirroring
// config/types.go's ProviderConfigs.SetDefaults (iterate each map, default
// in place, write the defaulted copy back).
func (c *Config) SetDefaults() {
	for name, a := range c.Agents {
		a.setDefaults()
		c.Agents[name] = a
	}
}

// Validate checks the whole document: agent references resolve, and every
// agent/LLM sub-config validates on its own terms.
func (c *Config) Validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("bot: config has no agents")
	}
	if c.EntryPoint == "" {
		return fmt.Errorf("bot: config: entry_point is required")
	}
	if _, ok := c.Agents[c.EntryPoint]; !ok {
		return fmt.Errorf("bot: config: entry_point %q is not a declared agent", c.EntryPoint)
	}

	for name, llm := range c.LLMs {
		if err := llm.validate(name); err != nil {
			return err
		}
	}

	for name, a := range c.Agents {
		if err := a.validate(name); err != nil {
			return err
		}
		if a.LLM != "" {
			if _, ok := c.LLMs[a.LLM]; !ok {
				return fmt.Errorf("bot: agent %q: llm %q is not declared", name, a.LLM)
			}
		}
		if a.Fallback != "" {
			if _, ok := c.Agents[a.Fallback]; !ok {
				return fmt.Errorf("bot: agent %q: fallback %q is not a declared agent", name, a.Fallback)
			}
		}
		if a.Exit != "" {
			if _, ok := c.Agents[a.Exit]; !ok {
				return fmt.Errorf("bot: agent %q: exit %q is not a declared agent", name, a.Exit)
			}
		}
		for _, c2 := range a.Contains {
			if _, ok := c.Agents[c2]; !ok {
				return fmt.Errorf("bot: agent %q: contains %q is not a declared agent", name, c2)
			}
		}
	}
	return nil
}
