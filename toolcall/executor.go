// Package toolcall implements the tool-function collaborator of spec §4.4:
// an external executor that describes and runs named tool functions, plus
// the translation of its result items into BotUtter/SetSlot/AgentComplete
// events. It is grounded on the teacher's tools package (ToolRegistry,
// ToolEntry, the repository-per-backend shape of local.go/command.go) and
// on pkg/tool/mcptoolset for the MCP-backed variant, generalized from
// "run an allow-listed shell command" to "load a sandboxed script once and
// call named functions inside it."
package toolcall

import "context"

// ArgSpec describes one declared parameter of a tool function, part of the
// description object the prompt builder attaches as a model tool schema
// (spec §4.3 step 2).
type ArgSpec struct {
	Name        string
	Type        string
	Description string
}

// Descriptor is the `get(name)` result of spec §4.4: enough to both
// document the function to a human and to advertise it to a model as a
// callable tool.
type Descriptor struct {
	Name        string
	Description string
	Args        []ArgSpec
	Required    []string
}

// ResultItem is one entry of the `result` list returned by
// executeFunction, before it has been classified into bot/arg/status.
type ResultItem struct {
	Bot    string `mapstructure:"bot"`
	Arg    string `mapstructure:"arg"`
	Value  any    `mapstructure:"value"`
	Status string `mapstructure:"status"`
	Msg    string `mapstructure:"msg"`
}

// ExecResult is the raw `{status, result, stdout, stderr}` shape spec §4.4
// says executeFunction returns.
type ExecResult struct {
	Status string
	Result []map[string]any
	Stdout string
	Stderr string
}

// Executor is one backend capable of describing and running tool
// functions: the sandboxed script evaluator (script.go) or an MCP server
// (mcp.go). Both satisfy it structurally.
type Executor interface {
	// Descriptors lists every tool function this backend offers, for
	// registration with a Caller and for prompt/schema generation.
	Descriptors(ctx context.Context) ([]Descriptor, error)

	// ExecuteFunction runs one named function with the given keyword
	// arguments and returns its raw, untranslated result.
	ExecuteFunction(ctx context.Context, name string, kwargs map[string]any) (ExecResult, error)
}
