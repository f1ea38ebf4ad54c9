package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalConfig() *Config {
	return &Config{
		EntryPoint: "greeter",
		Agents: map[string]AgentConfig{
			"greeter": {
				Type: AgentTypeFlow,
				Main: "main",
				Subflows: map[string][]StepConfig{
					"main": {{Kind: "bot", Bot: "hi"}},
				},
			},
		},
	}
}

func TestConfig_ValidateAcceptsMinimalFlowBot(t *testing.T) {
	cfg := minimalConfig()
	cfg.SetDefaults()
	assert.NoError(t, cfg.Validate())
}

func TestConfig_ValidateRejectsMissingEntryPoint(t *testing.T) {
	cfg := minimalConfig()
	cfg.EntryPoint = ""
	assert.Error(t, cfg.Validate())
}

func TestConfig_ValidateRejectsUnknownEntryPoint(t *testing.T) {
	cfg := minimalConfig()
	cfg.EntryPoint = "ghost"
	assert.Error(t, cfg.Validate())
}

func TestConfig_ValidateRejectsDanglingFallbackReference(t *testing.T) {
	cfg := minimalConfig()
	agent := cfg.Agents["greeter"]
	agent.Fallback = "nonexistent"
	cfg.Agents["greeter"] = agent
	assert.Error(t, cfg.Validate())
}

func TestConfig_ValidateRejectsEnsembleWithNoContains(t *testing.T) {
	cfg := minimalConfig()
	cfg.Agents["router"] = AgentConfig{Type: AgentTypeEnsemble}
	cfg.EntryPoint = "router"
	assert.Error(t, cfg.Validate())
}

func TestConfig_ValidateRejectsLLMAgentWithNoPrompt(t *testing.T) {
	cfg := minimalConfig()
	cfg.Agents["helper"] = AgentConfig{Type: AgentTypeLLM}
	cfg.EntryPoint = "helper"
	assert.Error(t, cfg.Validate())
}

func TestConfig_ValidateRejectsKBAgentWithNoCollection(t *testing.T) {
	cfg := minimalConfig()
	cfg.Agents["faq"] = AgentConfig{Type: AgentTypeKB}
	cfg.EntryPoint = "faq"
	assert.Error(t, cfg.Validate())
}

func TestConfig_SetDefaultsFillsMainSubflowName(t *testing.T) {
	cfg := &Config{
		EntryPoint: "greeter",
		Agents: map[string]AgentConfig{
			"greeter": {
				Type: AgentTypeFlow,
				Subflows: map[string][]StepConfig{
					"main": {{Kind: "bot", Bot: "hi"}},
				},
			},
		},
	}
	cfg.SetDefaults()
	assert.Equal(t, "main", cfg.Agents["greeter"].Main)
	require.NoError(t, cfg.Validate())
}

func TestLLMConfig_ValidateRequiresAPIKeyForOpenAI(t *testing.T) {
	c := LLMConfig{Type: "openai", Model: "gpt-4o"}
	assert.Error(t, c.validate("default"))
	c.APIKey = "sk-test"
	assert.NoError(t, c.validate("default"))
}

func TestLLMConfig_ValidateRejectsOutOfRangeTemperature(t *testing.T) {
	c := LLMConfig{Type: "ollama", Model: "llama3", Temperature: 3}
	assert.Error(t, c.validate("default"))
}
