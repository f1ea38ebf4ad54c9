package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// OllamaConfig configures an OllamaAdapter.
type OllamaConfig struct {
	Model       string
	Host        string // defaults to http://localhost:11434
	Temperature float64
	Timeout     time.Duration
}

func (c *OllamaConfig) setDefaults() {
	if c.Host == "" {
		c.Host = "http://localhost:11434"
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

func (c *OllamaConfig) validate() error {
	if c.Model == "" {
		return fmt.Errorf("model: ollama: model is required")
	}
	return nil
}

// OllamaAdapter implements Adapter against a local Ollama server, adapted
// from the teacher's llms.OllamaProvider. Ollama's /api/chat endpoint has
// no native tool-calling contract as clean as OpenAI's/Anthropic's, so tool
// schemas are folded into the system prompt. The reply is always returned
// as a single text event: a function call written in the reply is not
// turned into a function-call event.
type OllamaAdapter struct {
	cfg    OllamaConfig
	client *http.Client
	log    *slog.Logger
}

// NewOllamaAdapter validates cfg and returns a ready adapter.
func NewOllamaAdapter(cfg OllamaConfig) (*OllamaAdapter, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &OllamaAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    slog.Default().With("component", "model.ollama"),
	}, nil
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string               `json:"model"`
	Messages []ollamaChatMessage  `json:"messages"`
	Stream   bool                 `json:"stream"`
	Options  ollamaChatReqOptions `json:"options"`
}

type ollamaChatReqOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Error   string            `json:"error,omitempty"`
}

func (a *OllamaAdapter) GenerateMessage(ctx context.Context, messages []Message, functions []ToolDefinition, provider string) ([]GeneratedEvent, error) {
	chatMessages := toOllamaMessages(messages, functions)

	req := ollamaChatRequest{
		Model:    a.cfg.Model,
		Messages: chatMessages,
		Options:  ollamaChatReqOptions{Temperature: a.cfg.Temperature},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("model: ollama: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("model: ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		a.log.Warn("transport failure calling ollama", "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("model: ollama: read response: %w", err)
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("model: ollama: decode response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("model: ollama: api error: %s", parsed.Error)
	}

	return []GeneratedEvent{{Text: parsed.Message.Content}}, nil
}

func toOllamaMessages(messages []Message, functions []ToolDefinition) []ollamaChatMessage {
	out := make([]ollamaChatMessage, 0, len(messages)+1)
	if len(functions) > 0 {
		out = append(out, ollamaChatMessage{Role: "system", Content: toolPromptAddendum(functions)})
	}
	for _, m := range messages {
		role := string(m.Role)
		if m.Role == RoleTool {
			role = "user"
		}
		out = append(out, ollamaChatMessage{Role: role, Content: m.Content})
	}
	return out
}

func toolPromptAddendum(functions []ToolDefinition) string {
	var b strings.Builder
	b.WriteString("You may call the following functions by replying with a single JSON object ")
	b.WriteString(`{"function": "<name>", "args": {...}}`)
	b.WriteString(" instead of a normal answer:\n")
	for _, f := range functions {
		b.WriteString("- ")
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Description)
		b.WriteString("\n")
	}
	return b.String()
}
