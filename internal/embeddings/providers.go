package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	phttp "talent-match/pkg/http"
)

// OllamaClient calls Ollama's /api/embed endpoint.
type OllamaClient struct {
	baseURL string
	model   string
	http    *phttp.Client
}

func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    phttp.NewClient(timeout),
	}
}

func (c *OllamaClient) ModelVersion() string { return "ollama:" + c.model }

func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}
	req := map[string]any{
		"model": c.model,
		"input": []string{text},
	}
	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := c.http.PostJSON(ctx, c.baseURL+"/api/embed", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, errors.New("no embeddings returned")
	}
	return resp.Embeddings[0], nil
}

// OpenAIClient calls the OpenAI embeddings API.
type OpenAIClient struct {
	baseURL string
	model   string
	apiKey  string
	http    *phttp.Client
}

func NewOpenAIClient(baseURL, model, apiKey string, timeout time.Duration) *OpenAIClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		http:    phttp.NewClient(timeout),
	}
}

func (c *OpenAIClient) ModelVersion() string { return "openai:" + c.model }

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	req := map[string]any{
		"input": text,
		"model": c.model,
	}
	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := c.http.PostJSON(ctx, c.baseURL+"/embeddings", headers, req, &result); err != nil {
		return nil, fmt.Errorf("embedding API error: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return result.Data[0].Embedding, nil
}

// GeminiClient embeds through the Gemini API.
type GeminiClient struct {
	client     *genai.Client
	model      string
	dimensions int32
}

func NewGeminiClient(ctx context.Context, apiKey, model string, dimensions int) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{client: client, model: model, dimensions: int32(dimensions)}, nil
}

func (c *GeminiClient) ModelVersion() string {
	return fmt.Sprintf("gemini:%s:%d", c.model, c.dimensions)
}

func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"}
	if c.dimensions > 0 {
		cfg.OutputDimensionality = genai.Ptr(c.dimensions)
	}
	resp, err := c.client.Models.EmbedContent(ctx, c.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("gemini api returned no embedding")
	}
	// Truncated gemini vectors are not unit length.
	return Normalize(resp.Embeddings[0].Values), nil
}
