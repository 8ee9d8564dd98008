package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/karsten/pillarcat/internal/domain"
	"github.com/karsten/pillarcat/internal/logger"
	"github.com/karsten/pillarcat/internal/prompts"
)

// Maximum markup passed to the model per page. Larger pages are truncated;
// product content almost always appears early in the document.
const maxPageChars = 60000

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	client *resty.Client
	model  string
}

// Config holds the extraction endpoint settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewClient creates an extraction client for the configured endpoint.
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &Client{
		client: client,
		model:  cfg.Model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ExtractProduct converts page markup into a product candidate. Returns
// (nil, nil) when the model reports the page is not a product page.
func (c *Client) ExtractProduct(ctx context.Context, html, pageURL, manufacturerName string) (*StructuredProduct, error) {
	if len(html) > maxPageChars {
		html = html[:maxPageChars]
	}

	userPrompt := fmt.Sprintf("Manufacturer: %s\nPage URL: %s\n\nHTML:\n%s", manufacturerName, pageURL, html)

	content, err := c.complete(ctx, prompts.ProductSystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		IsProduct bool `json:"is_product"`
		StructuredProduct
	}
	if err := json.Unmarshal([]byte(CleanModelJSON(content)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}
	if !parsed.IsProduct {
		logger.FromContext(ctx).WithField("url", pageURL).Debug("Page is not a product page")
		return nil, nil
	}

	product := parsed.StructuredProduct
	product.SourceURL = pageURL
	if product.Specifications == nil {
		product.Specifications = map[string]string{}
	}
	return &product, nil
}

// ExtractFields maps raw product text onto a pillar schema.
func (c *Client) ExtractFields(ctx context.Context, rawText string, schema *domain.PillarSchema) (*FieldResult, error) {
	schemaJSON, err := json.Marshal(schema.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}

	userPrompt := fmt.Sprintf("Category: %s\nField schema:\n%s\nRequired fields: %s\n\nProduct text:\n%s",
		schema.Pillar, schemaJSON, strings.Join(schema.Required, ", "), rawText)

	content, err := c.complete(ctx, prompts.FieldsSystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	var result FieldResult
	if err := json.Unmarshal([]byte(CleanModelJSON(content)), &result); err != nil {
		return nil, fmt.Errorf("failed to parse field extraction response: %w", err)
	}
	if result.Specifications == nil {
		result.Specifications = map[string]string{}
	}
	return &result, nil
}

// IdentifyLinks classifies the links of a navigation page for AI-guided
// discovery.
func (c *Client) IdentifyLinks(ctx context.Context, html, baseURL string) (*LinkResult, error) {
	if len(html) > maxPageChars {
		html = html[:maxPageChars]
	}

	userPrompt := fmt.Sprintf("Base URL: %s\n\nHTML:\n%s", baseURL, html)

	content, err := c.complete(ctx, prompts.LinksSystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	var result LinkResult
	if err := json.Unmarshal([]byte(CleanModelJSON(content)), &result); err != nil {
		return nil, fmt.Errorf("failed to parse link identification response: %w", err)
	}
	return &result, nil
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0,
	}

	var resp chatResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("failed to call extraction endpoint: %w", err)
	}
	if httpResp.StatusCode() != 200 {
		if resp.Error != nil {
			return "", fmt.Errorf("extraction endpoint error: HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		}
		return "", fmt.Errorf("extraction endpoint error: HTTP %d: %s", httpResp.StatusCode(), httpResp.String())
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("extraction endpoint returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
