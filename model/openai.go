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

// OpenAIConfig configures an OpenAIAdapter.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	Host        string // defaults to https://api.openai.com/v1
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

func (c *OpenAIConfig) setDefaults() {
	if c.Host == "" {
		c.Host = "https://api.openai.com/v1"
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1000
	}
}

func (c *OpenAIConfig) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("model: openai: api key is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model: openai: model is required")
	}
	return nil
}

// OpenAIAdapter implements Adapter against the OpenAI chat-completions API,
// adapted from the teacher's llms.OpenAIProvider: same request/response
// shape, generalized from a single (text, toolCalls) return into the
// ordered GeneratedEvent slice this contract returns.
type OpenAIAdapter struct {
	cfg    OpenAIConfig
	client *http.Client
	log    *slog.Logger
}

// NewOpenAIAdapter validates cfg and returns a ready adapter.
func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &OpenAIAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    slog.Default().With("component", "model.openai"),
	}, nil
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
	Tools       []openAITool    `json:"tools,omitempty"`
}

type openAIChoice struct {
	Message openAIMessage `json:"message"`
}

type openAIError struct {
	Message string `json:"message"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Error   *openAIError   `json:"error,omitempty"`
}

func (a *OpenAIAdapter) GenerateMessage(ctx context.Context, messages []Message, functions []ToolDefinition, provider string) ([]GeneratedEvent, error) {
	req := openAIRequest{
		Model:       a.cfg.Model,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
		Messages:    toOpenAIMessages(messages),
		Tools:       toOpenAITools(functions),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("model: openai: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Host+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("model: openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		// Transport failure: per spec §7, the caller treats an empty
		// result as a no-progress step, so we return the error and let
		// the agent layer decide.
		a.log.Warn("transport failure calling openai", "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("model: openai: read response: %w", err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("model: openai: decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("model: openai: api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("model: openai: no choices returned")
	}

	msg := parsed.Choices[0].Message
	var events []GeneratedEvent
	if msg.Content != "" {
		events = append(events, GeneratedEvent{Text: msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("model: openai: decode tool arguments: %w", err)
			}
		}
		events = append(events, GeneratedEvent{
			IsFunctionCall: true,
			FunctionName:   tc.Function.Name,
			Args:           args,
			CallID:         tc.ID,
		})
	}
	return events, nil
}

func toOpenAIMessages(messages []Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openAIMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		})
	}
	return out
}

func toOpenAITools(functions []ToolDefinition) []openAITool {
	if len(functions) == 0 {
		return nil
	}
	out := make([]openAITool, 0, len(functions))
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
		out = append(out, openAITool{
			Type: "function",
			Function: openAIToolFunction{
				Name:        f.Name,
				Description: f.Description,
				Parameters: map[string]any{
					"type":       "object",
					"properties": props,
					"required":   required,
				},
			},
		})
	}
	return out
}
