package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karsten/pillarcat/internal/domain"
	"github.com/karsten/pillarcat/internal/extract"
)

func TestDiscoverPrefersConfiguredProductList(t *testing.T) {
	mfr := testManufacturer()
	mfr.ScraperConfig = domain.ScraperConfigJSON{Config: &domain.ScraperConfig{
		ProductListURL: "https://acme.example/products",
		LinkSelector:   "/products/",
	}}

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://acme.example/products": `<html><body>
			<a href="/products/fd-30">FD-30</a>
			<a href="/products/fd-60">FD-60</a>
			<a href="/about">About us</a>
			<a href="https://other.example/products/x">External</a>
		</body></html>`,
	}}

	svc := NewDiscoveryService(fetcher, &fakeExtractor{})
	result, err := svc.Discover(context.Background(), mfr)
	require.NoError(t, err)

	assert.Equal(t, DiscoveryMethodConfigured, result.Method)
	assert.ElementsMatch(t, []string{
		"https://acme.example/products/fd-30",
		"https://acme.example/products/fd-60",
	}, result.URLs)
}

func TestDiscoverFallsBackToSitemap(t *testing.T) {
	mfr := testManufacturer()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://acme.example/robots.txt": "User-agent: *\nSitemap: https://acme.example/sitemap.xml\n",
		"https://acme.example/sitemap.xml": `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://acme.example/products/fd-30</loc></url>
  <url><loc>https://acme.example/products/fd-60</loc></url>
</urlset>`,
	}}

	svc := NewDiscoveryService(fetcher, &fakeExtractor{})
	result, err := svc.Discover(context.Background(), mfr)
	require.NoError(t, err)

	assert.Equal(t, DiscoveryMethodSitemap, result.Method)
	assert.Equal(t, []string{
		"https://acme.example/products/fd-30",
		"https://acme.example/products/fd-60",
	}, result.URLs)
}

func TestDiscoverUsesAINavigationAsLastResort(t *testing.T) {
	mfr := testManufacturer()

	fetcher := &fakeFetcher{pages: map[string]string{
		// No robots.txt and no sitemap.
		"https://acme.example":         "<html>home</html>",
		"https://acme.example/catalog": "<html>catalog</html>",
	}}

	extractor := &fakeExtractor{
		identifyLinks: func(_ context.Context, _, baseURL string) (*extract.LinkResult, error) {
			if baseURL == "https://acme.example" {
				return &extract.LinkResult{ListingURLs: []string{"https://acme.example/catalog"}}, nil
			}
			return &extract.LinkResult{ProductURLs: []string{"https://acme.example/products/fd-30"}}, nil
		},
	}

	svc := NewDiscoveryService(fetcher, extractor)
	result, err := svc.Discover(context.Background(), mfr)
	require.NoError(t, err)

	assert.Equal(t, DiscoveryMethodAI, result.Method)
	assert.Equal(t, []string{"https://acme.example/products/fd-30"}, result.URLs)
}

func TestDiscoverAIWithNoProductPagesSucceedsEmpty(t *testing.T) {
	mfr := testManufacturer()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://acme.example": "<html>brochure-ware, no products</html>",
	}}
	extractor := &fakeExtractor{
		identifyLinks: func(_ context.Context, _, _ string) (*extract.LinkResult, error) {
			return &extract.LinkResult{}, nil
		},
	}

	svc := NewDiscoveryService(fetcher, extractor)
	result, err := svc.DiscoverAI(context.Background(), mfr)
	require.NoError(t, err, "an empty site must not be treated as a discovery failure")

	assert.Empty(t, result.URLs)
	assert.Equal(t, DiscoveryMethodAI, result.Method)
}

func TestDiscoverConfiguredListWithNoMatchingLinksSucceedsEmpty(t *testing.T) {
	mfr := testManufacturer()
	mfr.ScraperConfig = domain.ScraperConfigJSON{Config: &domain.ScraperConfig{
		ProductListURL: "https://acme.example/products",
		LinkSelector:   "/products/",
	}}

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://acme.example/products": `<html><body><a href="/about">About us</a></body></html>`,
	}}

	svc := NewDiscoveryService(fetcher, &fakeExtractor{})
	result, err := svc.Discover(context.Background(), mfr)
	require.NoError(t, err)

	assert.Empty(t, result.URLs)
	assert.Equal(t, DiscoveryMethodConfigured, result.Method)
}

func TestExtractLinksResolvesRelativeAndSkipsJunk(t *testing.T) {
	links := ExtractLinks(`<html><body>
		<a href="/a">A</a>
		<a href="b/c">BC</a>
		<a href="#section">anchor</a>
		<a href="mailto:x@acme.example">mail</a>
		<a href="javascript:void(0)">js</a>
		<a href="https://elsewhere.example/z">offsite</a>
	</body></html>`, "https://acme.example/dir/page")

	assert.Equal(t, []string{
		"https://acme.example/a",
		"https://acme.example/dir/b/c",
	}, links)
}
