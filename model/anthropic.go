package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// AnthropicConfig configures an AnthropicAdapter.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	Host        string // defaults to https://api.anthropic.com/v1
	Version     string // defaults to 2023-06-01
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

func (c *AnthropicConfig) setDefaults() {
	if c.Host == "" {
		c.Host = "https://api.anthropic.com/v1"
	}
	if c.Version == "" {
		c.Version = "2023-06-01"
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1000
	}
}

func (c *AnthropicConfig) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("model: anthropic: api key is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model: anthropic: model is required")
	}
	return nil
}

// AnthropicAdapter implements Adapter against the Anthropic messages API,
// adapted from the teacher's llms.AnthropicProvider.
type AnthropicAdapter struct {
	cfg    AnthropicConfig
	client *http.Client
	log    *slog.Logger
}

// NewAnthropicAdapter validates cfg and returns a ready adapter.
func NewAnthropicAdapter(cfg AnthropicConfig) (*AnthropicAdapter, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &AnthropicAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    slog.Default().With("component", "model.anthropic"),
	}, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicContentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicError struct {
	Message string `json:"message"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Error   *anthropicError         `json:"error,omitempty"`
}

func (a *AnthropicAdapter) GenerateMessage(ctx context.Context, messages []Message, functions []ToolDefinition, provider string) ([]GeneratedEvent, error) {
	system, rest := splitSystem(messages)

	req := anthropicRequest{
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
		System:      system,
		Messages:    toAnthropicMessages(rest),
		Tools:       toAnthropicTools(functions),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("model: anthropic: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Host+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("model: anthropic: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", a.cfg.Version)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		a.log.Warn("transport failure calling anthropic", "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("model: anthropic: read response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("model: anthropic: decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("model: anthropic: api error: %s", parsed.Error.Message)
	}

	var events []GeneratedEvent
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			events = append(events, GeneratedEvent{Text: block.Text})
		case "tool_use":
			events = append(events, GeneratedEvent{
				IsFunctionCall: true,
				FunctionName:   block.Name,
				Args:           block.Input,
				CallID:         block.ID,
			})
		}
	}
	return events, nil
}

func splitSystem(messages []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func toAnthropicMessages(messages []Message) []anthropicMessage {
	out := make([]anthropicMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleTool {
			out = append(out, anthropicMessage{
				Role: "user",
				Content: []anthropicContentBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Text:      m.Content,
				}},
			})
			continue
		}
		out = append(out, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func toAnthropicTools(functions []ToolDefinition) []anthropicTool {
	if len(functions) == 0 {
		return nil
	}
	out := make([]anthropicTool, 0, len(functions))
	for _, f := range functions {
		props := make(map[string]any, len(f.Parameters))
		required := make([]string, 0, len(f.Parameters))
		for _, p := range f.Parameters {
			props[p.Name] = map[string]any{
				"type":        p.Type,
				"description": p.Description,
			}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		out = append(out, anthropicTool{
			Name:        f.Name,
			Description: f.Description,
			InputSchema: map[string]any{
				"type":       "object",
				"properties": props,
				"required":   required,
			},
		})
	}
	return out
}
