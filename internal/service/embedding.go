package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/karsten/pillarcat/internal/domain"
)

// Embedder turns text into a vector. Implementations must be safe for
// concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// JinaClient calls a Jina-compatible embeddings endpoint.
type JinaClient struct {
	client     *resty.Client
	model      string
	dimensions int
}

// NewJinaClient creates an embedding client.
func NewJinaClient(baseURL, apiKey, model string, dimensions int) *JinaClient {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(30 * time.Second)
	client.SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}

	return &JinaClient{
		client:     client,
		model:      model,
		dimensions: dimensions,
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for one text.
func (c *JinaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	req := embeddingRequest{
		Model:      c.model,
		Input:      []string{text},
		Dimensions: c.dimensions,
	}

	var resp embeddingResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post("/embeddings")
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding endpoint: %w", err)
	}
	if httpResp.StatusCode() != 200 {
		return nil, fmt.Errorf("embedding endpoint error: HTTP %d: %s", httpResp.StatusCode(), httpResp.String())
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding endpoint returned no data")
	}

	return resp.Data[0].Embedding, nil
}

// EmbeddingText builds the text embedded for one product: name, description,
// category and flattened specification pairs.
func EmbeddingText(p *domain.Product) string {
	var sb strings.Builder
	sb.WriteString(p.Name)
	if p.Description != "" {
		sb.WriteString("\n")
		sb.WriteString(p.Description)
	}
	if p.Pillar != "" {
		sb.WriteString("\nCategory: ")
		sb.WriteString(p.Pillar)
	}
	for _, k := range sortedKeys(p.Specifications) {
		sb.WriteString("\n")
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(p.Specifications[k])
	}
	return sb.String()
}

func sortedKeys(m domain.StringMap) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
