package toolcall

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPConfig configures a stdio-transport MCP server as a tool-function
// backend, the subset of the teacher's mcptoolset.Config this module
// exercises (HTTP/SSE transports are left for a future backend; nothing in
// the bot assembler needs them yet).
type MCPConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// MCPExecutor adapts an MCP server to Executor, grounded on
// pkg/tool/mcptoolset.Toolset.connectStdio/Tools and mcpToolWrapper.Call.
// The connection is established lazily on first use and kept open for the
// process lifetime of the bot.
type MCPExecutor struct {
	cfg MCPConfig
	log *slog.Logger

	mu        sync.Mutex
	client    *client.Client
	connected bool
	tools     []mcp.Tool
}

// NewMCPExecutor returns an executor that will connect to cfg's server on
// first Descriptors/ExecuteFunction call.
func NewMCPExecutor(cfg MCPConfig) *MCPExecutor {
	return &MCPExecutor{
		cfg: cfg,
		log: slog.Default().With("component", "toolcall.mcp", "server", cfg.Name),
	}
}

func (m *MCPExecutor) connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		return nil
	}

	mcpClient, err := client.NewStdioMCPClient(m.cfg.Command, envSlice(m.cfg.Env), m.cfg.Args...)
	if err != nil {
		return fmt.Errorf("create mcp client: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("start mcp client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "convoy", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("initialize mcp: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("list mcp tools: %w", err)
	}

	m.client = mcpClient
	m.tools = listResp.Tools
	m.connected = true
	m.log.Info("connected to mcp server", "tools", len(m.tools))
	return nil
}

func (m *MCPExecutor) Descriptors(ctx context.Context) ([]Descriptor, error) {
	if err := m.connect(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	descs := make([]Descriptor, 0, len(m.tools))
	for _, t := range m.tools {
		descs = append(descs, Descriptor{
			Name:        t.Name,
			Description: t.Description,
			Args:        argsFromSchema(t.InputSchema),
			Required:    t.InputSchema.Required,
		})
	}
	return descs, nil
}

func argsFromSchema(schema mcp.ToolInputSchema) []ArgSpec {
	args := make([]ArgSpec, 0, len(schema.Properties))
	for name, raw := range schema.Properties {
		prop, ok := raw.(map[string]any)
		if !ok {
			args = append(args, ArgSpec{Name: name})
			continue
		}
		typ, _ := prop["type"].(string)
		desc, _ := prop["description"].(string)
		args = append(args, ArgSpec{Name: name, Type: typ, Description: desc})
	}
	return args
}

// ExecuteFunction calls name over the MCP connection and adapts its
// content blocks into the {status, result, stdout} shape the rest of
// toolcall expects: a successful tool reply that parses as a JSON array of
// result-item objects becomes Result; otherwise (a single JSON object
// included) its text is
// passed through as Stdout, per mcpToolWrapper.parseToolResponse's
// single/multi-text collection but routed through ResultItem translation
// instead of a generic map.
func (m *MCPExecutor) ExecuteFunction(ctx context.Context, name string, kwargs map[string]any) (ExecResult, error) {
	if err := m.connect(ctx); err != nil {
		return ExecResult{}, err
	}
	m.mu.Lock()
	mcpClient := m.client
	m.mu.Unlock()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = kwargs

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return ExecResult{}, fmt.Errorf("mcp call %s: %w", name, err)
	}

	var texts []string
	for _, content := range resp.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	joined := ""
	for i, t := range texts {
		if i > 0 {
			joined += "\n"
		}
		joined += t
	}

	if resp.IsError {
		return ExecResult{Status: "error", Stderr: joined}, nil
	}

	var result []map[string]any
	if err := json.Unmarshal([]byte(joined), &result); err == nil {
		return ExecResult{Status: "success", Result: result}, nil
	}

	return ExecResult{Status: "success", Stdout: joined}, nil
}

func envSlice(env map[string]string) []string {
	if env == nil {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
