package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpflow/convoy/agentcore"
	"github.com/kpflow/convoy/flow"
	"github.com/kpflow/convoy/kb"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) { return []float32{0.1}, nil }

type fakeRetriever struct{}

func (fakeRetriever) Search(ctx context.Context, collection string, vector []float32, topK int) ([]kb.SearchResult, error) {
	return []kb.SearchResult{{ID: "doc-1", Content: "hours are 9-5"}}, nil
}

func TestAssemble_BuildsFlowAgentFromConfig(t *testing.T) {
	cfg := &Config{
		EntryPoint: "greeter",
		Agents: map[string]AgentConfig{
			"greeter": {
				Type: AgentTypeFlow,
				Main: "main",
				Subflows: map[string][]StepConfig{
					"main": {{Kind: "bot", Bot: "hi"}, {Kind: "user"}, {Kind: "bot", Bot: "bye"}},
				},
			},
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	asm := &Assembler{}
	built, err := asm.Assemble(context.Background(), cfg)
	require.NoError(t, err)

	greeter, ok := built.Agents["greeter"].(*flow.Agent)
	require.True(t, ok)
	assert.Equal(t, "main", greeter.MainSubflow)
	assert.Equal(t, "greeter", built.EntryPoint)
}

func TestAssemble_WiresLLMAgentFields(t *testing.T) {
	cfg := &Config{
		EntryPoint: "booking_agent",
		LLMs: map[string]LLMConfig{
			"default": {Type: "openai", Model: "gpt-4o", APIKey: "sk-test"},
		},
		Agents: map[string]AgentConfig{
			"booking_agent": {
				Type:   AgentTypeLLM,
				Prompt: "Help the user book a table.",
				Args:   []string{"date", "time"},
				Uses:   []string{"check_availability"},
				LLM:    "default",
			},
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	asm := &Assembler{}
	built, err := asm.Assemble(context.Background(), cfg)
	require.NoError(t, err)

	llmAgent, ok := built.Agents["booking_agent"].(*agentcore.LLMAgent)
	require.True(t, ok)
	assert.NotNil(t, llmAgent.Model)
	assert.Equal(t, "default", llmAgent.ModelProvider)
	assert.Equal(t, []string{"date", "time"}, llmAgent.DeclaredArgs)
	assert.Equal(t, []string{"check_availability"}, llmAgent.ToolNames)
}

func TestAssemble_WiresSingleKBAgentIntoEveryEnsemble(t *testing.T) {
	cfg := &Config{
		EntryPoint: "router",
		LLMs: map[string]LLMConfig{
			"default": {Type: "ollama", Model: "llama3"},
		},
		Agents: map[string]AgentConfig{
			"router": {
				Type:     AgentTypeEnsemble,
				Contains: []string{"booking_agent"},
				LLM:      "default",
			},
			"booking_agent": {
				Type:        AgentTypeLLM,
				Prompt:      "Book a table.",
				Description: "books restaurant reservations",
				LLM:         "default",
			},
			"faq": {
				Type:       AgentTypeKB,
				Collection: "support_docs",
			},
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	asm := &Assembler{KBEmbedder: fakeEmbedder{}, KBRetriever: fakeRetriever{}}
	built, err := asm.Assemble(context.Background(), cfg)
	require.NoError(t, err)

	router, ok := built.Agents["router"].(*agentcore.EnsembleAgent)
	require.True(t, ok)
	require.NotNil(t, router.KB)
	assert.Equal(t, "books restaurant reservations", router.Descriptions["booking_agent"])

	_, ok = built.Agents["faq"].(*agentcore.KBAgent)
	assert.True(t, ok)
}

func TestAssemble_RejectsKBAgentWithoutCollaboratorsSupplied(t *testing.T) {
	cfg := &Config{
		EntryPoint: "faq",
		Agents: map[string]AgentConfig{
			"faq": {Type: AgentTypeKB, Collection: "support_docs"},
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	asm := &Assembler{}
	_, err := asm.Assemble(context.Background(), cfg)
	assert.Error(t, err)
}
