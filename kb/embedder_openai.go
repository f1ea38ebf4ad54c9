package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIEmbedderConfig configures an OpenAIEmbedder, adapted from the
// teacher's config.EmbedderProviderConfig (pkg/embedders/openai.go) down
// to the fields a single-text Embed call needs.
type OpenAIEmbedderConfig struct {
	APIKey  string
	Model   string // defaults to text-embedding-3-small
	Host    string // defaults to https://api.openai.com/v1
	Timeout time.Duration
}

func (c *OpenAIEmbedderConfig) setDefaults() {
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.Host == "" {
		c.Host = "https://api.openai.com/v1"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// OpenAIEmbedder implements Embedder against OpenAI's embeddings API,
// adapted from the teacher's embedders.OpenAIEmbedder.EmbedWithContext,
// narrowed to a single string per call (the KB agent only ever embeds one
// query at a time; the teacher's batch Input: []string{...} is not needed).
type OpenAIEmbedder struct {
	cfg    OpenAIEmbedderConfig
	client *http.Client
}

// NewOpenAIEmbedder validates cfg and returns a ready embedder.
func NewOpenAIEmbedder(cfg OpenAIEmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("kb: openai embedder: api key is required")
	}
	cfg.setDefaults()
	return &OpenAIEmbedder{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type openAIEmbedError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(openAIEmbedRequest{Model: e.cfg.Model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("kb: marshal embed request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Host+"/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("kb: build embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("kb: embed request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kb: read embed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp openAIEmbedError
		_ = json.Unmarshal(body, &errResp)
		if errResp.Error.Message != "" {
			return nil, fmt.Errorf("kb: embed api error: %s", errResp.Error.Message)
		}
		return nil, fmt.Errorf("kb: embed api status %d", resp.StatusCode)
	}

	var out openAIEmbedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("kb: decode embed response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("kb: embed response had no data")
	}
	return out.Data[0].Embedding, nil
}
