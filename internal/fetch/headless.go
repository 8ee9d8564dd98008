package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Result is one fetched page. HTML is nil when the page could not be
// retrieved; callers treat that as a soft per-URL failure.
type Result struct {
	URL  string  `json:"url"`
	HTML *string `json:"html"`
}

// Fetcher retrieves raw page markup for batches of URLs.
type Fetcher interface {
	// FetchBatch fetches all URLs and returns one Result per input URL,
	// in input order.
	FetchBatch(ctx context.Context, urls []string) ([]Result, error)

	// FetchPage fetches a single URL, returning an error when the page
	// could not be retrieved.
	FetchPage(ctx context.Context, url string) (string, error)
}

// HeadlessClient drives an external headless fetch service that renders
// pages and returns their markup.
type HeadlessClient struct {
	client      *resty.Client
	endpoint    string
	concurrency int
	pageTimeout time.Duration
}

// HeadlessConfig holds configuration for the headless fetch client.
type HeadlessConfig struct {
	Endpoint    string
	Concurrency int
	PageTimeout time.Duration
}

// NewHeadlessClient creates a client for the headless fetch service.
func NewHeadlessClient(cfg *HeadlessConfig) *HeadlessClient {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	// Whole-batch ceiling: per-page timeout times the batch that one worker
	// can hold, plus slack for service queueing.
	client.SetTimeout(cfg.PageTimeout*3 + 30*time.Second)

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	pageTimeout := cfg.PageTimeout
	if pageTimeout <= 0 {
		pageTimeout = 30 * time.Second
	}

	return &HeadlessClient{
		client:      client,
		endpoint:    cfg.Endpoint,
		concurrency: concurrency,
		pageTimeout: pageTimeout,
	}
}

type headlessRequest struct {
	URLs        []string `json:"urls"`
	Concurrency int      `json:"concurrency"`
	TimeoutMs   int      `json:"timeout_ms"`
}

type headlessResponse struct {
	Results []Result `json:"results"`
	Error   string   `json:"error,omitempty"`
}

// FetchBatch sends the URL batch to the headless service.
func (c *HeadlessClient) FetchBatch(ctx context.Context, urls []string) ([]Result, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	req := headlessRequest{
		URLs:        urls,
		Concurrency: c.concurrency,
		TimeoutMs:   int(c.pageTimeout / time.Millisecond),
	}

	var resp headlessResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call fetch service: %w", err)
	}
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		if resp.Error != "" {
			return nil, fmt.Errorf("fetch service error: HTTP %d: %s", httpResp.StatusCode(), resp.Error)
		}
		return nil, fmt.Errorf("fetch service error: HTTP %d", httpResp.StatusCode())
	}

	// The service echoes every requested URL; guard against short responses
	// so downstream batch accounting stays aligned with the input.
	if len(resp.Results) != len(urls) {
		byURL := make(map[string]*string, len(resp.Results))
		for _, r := range resp.Results {
			byURL[r.URL] = r.HTML
		}
		full := make([]Result, len(urls))
		for i, u := range urls {
			full[i] = Result{URL: u, HTML: byURL[u]}
		}
		return full, nil
	}

	return resp.Results, nil
}

// FetchPage fetches a single URL through the headless service.
func (c *HeadlessClient) FetchPage(ctx context.Context, url string) (string, error) {
	results, err := c.FetchBatch(ctx, []string{url})
	if err != nil {
		return "", err
	}
	if len(results) == 0 || results[0].HTML == nil {
		return "", fmt.Errorf("page not retrievable: %s", url)
	}
	return *results[0].HTML, nil
}
