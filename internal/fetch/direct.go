package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/panjf2000/ants/v2"
)

// DirectFetcher retrieves pages with plain HTTP requests. Used when no
// headless fetch endpoint is configured; JavaScript-rendered content is
// not available through this path.
type DirectFetcher struct {
	client      *resty.Client
	concurrency int
}

// NewDirectFetcher creates a DirectFetcher with bounded concurrency and a
// per-page timeout.
func NewDirectFetcher(concurrency int, pageTimeout time.Duration) *DirectFetcher {
	if concurrency <= 0 {
		concurrency = 3
	}
	if pageTimeout <= 0 {
		pageTimeout = 30 * time.Second
	}

	client := resty.New()
	client.SetTimeout(pageTimeout)
	// Some manufacturer sites reject the default Go user agent.
	client.SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	return &DirectFetcher{
		client:      client,
		concurrency: concurrency,
	}
}

// FetchBatch fetches all URLs through a bounded worker pool. Per-URL
// failures yield a nil HTML entry, never an error.
func (f *DirectFetcher) FetchBatch(ctx context.Context, urls []string) ([]Result, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	results := make([]Result, len(urls))
	var wg sync.WaitGroup

	pool, err := ants.NewPool(f.concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch pool: %w", err)
	}
	defer pool.Release()

	for i, u := range urls {
		i, u := i, u
		results[i] = Result{URL: u}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			html, err := f.fetchOne(ctx, u)
			if err != nil {
				return
			}
			results[i].HTML = &html
		})
		if submitErr != nil {
			wg.Done()
		}
	}
	wg.Wait()

	return results, nil
}

// FetchPage fetches a single URL.
func (f *DirectFetcher) FetchPage(ctx context.Context, url string) (string, error) {
	return f.fetchOne(ctx, url)
}

func (f *DirectFetcher) fetchOne(ctx context.Context, url string) (string, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("failed to fetch %s: HTTP %d", url, resp.StatusCode())
	}
	return string(resp.Body()), nil
}
