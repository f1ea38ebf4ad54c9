package bot

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
entry_point: greeter
bot_name: demo
llms:
  default:
    type: openai
    model: gpt-4o
    api_key: ${TEST_CONVOY_API_KEY}
agents:
  greeter:
    type: flow agent
    main: main
    llm: default
    subflows:
      main:
        - kind: bot
          bot: hi
        - kind: user
        - kind: bot
          bot: bye
`

func TestLoad_ParsesExpandsEnvAndValidates(t *testing.T) {
	require.NoError(t, os.Setenv("TEST_CONVOY_API_KEY", "sk-from-env"))
	defer os.Unsetenv("TEST_CONVOY_API_KEY")

	cfg, err := Load([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.BotName)
	assert.Equal(t, "sk-from-env", cfg.LLMs["default"].APIKey)
	assert.Equal(t, "main", cfg.Agents["greeter"].Main)
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	_, err := Load([]byte("entry_point: ghost\nagents: {}\n"))
	assert.Error(t, err)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	_, err := Load([]byte("agents: [this is not a map"))
	assert.Error(t, err)
}
