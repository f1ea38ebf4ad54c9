// Package model defines the model adapter contract the core depends on
// (spec §6): any language-model HTTP client that implements Adapter can
// drive an LLM agent. Concrete adapters (openai.go, anthropic.go, ollama.go)
// are thin translations of the teacher's llms package from its
// single-prompt-string Generate to this message/event-based contract.
package model

import "context"

// Role is the chat-message role, following the role/content convention
// named in spec §6.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of the conversation sent to a model adapter.
type Message struct {
	Role       Role
	Content    string
	ToolCallID string // set on Role=tool replies, echoing the FunctionCall's call id
}

// ToolParameter describes one named argument of a ToolDefinition.
type ToolParameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// ToolDefinition is the schema attached to a model call so the model may
// request a FunctionCall event in return (spec §4.3 step 2).
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  []ToolParameter
}

// GeneratedEvent is either a text reply or a tool-call request, mirroring
// the teacher's (string, []ToolCall) return pair but unified into one
// ordered slice, since spec §6 says generateMessage returns "BotUtter
// and/or FunctionCall" events in emission order.
type GeneratedEvent struct {
	IsFunctionCall bool

	// Text reply fields.
	Text string

	// Function-call fields.
	FunctionName string
	Args         map[string]any
	CallID       string
}

// Adapter is the model adapter contract of spec §6:
//
//	generateMessage(messages, tracker?, functions?, provider?) -> list<Event>
//
// The tracker argument is left out and provider is an opaque string, so
// this leaf package never imports a concrete Tracker.
type Adapter interface {
	GenerateMessage(ctx context.Context, messages []Message, functions []ToolDefinition, provider string) ([]GeneratedEvent, error)
}
