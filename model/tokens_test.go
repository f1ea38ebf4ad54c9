package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrimToTokenBudget_KeepsAllWhenUnderBudget(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}
	trimmed := TrimToTokenBudget(history, 1000)
	assert.Equal(t, history, trimmed)
}

func TestTrimToTokenBudget_DropsOldestFirst(t *testing.T) {
	long := strings.Repeat("word ", 200)
	history := []Message{
		{Role: RoleUser, Content: long},
		{Role: RoleAssistant, Content: long},
		{Role: RoleUser, Content: "most recent"},
	}

	trimmed := TrimToTokenBudget(history, 20)
	require := assert.New(t)
	require.NotEmpty(trimmed)
	require.Equal("most recent", trimmed[len(trimmed)-1].Content, "the most recent message must survive trimming")
	require.Less(len(trimmed), len(history), "older messages must be dropped once the budget is exceeded")
}

func TestTrimToTokenBudget_ZeroBudgetReturnsUnchanged(t *testing.T) {
	history := []Message{{Role: RoleUser, Content: "hi"}}
	assert.Equal(t, history, TrimToTokenBudget(history, 0))
}

func TestTrimToTokenBudget_EmptyHistory(t *testing.T) {
	assert.Empty(t, TrimToTokenBudget(nil, 100))
}
