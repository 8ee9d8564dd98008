package service

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/karsten/pillarcat/internal/domain"
	"github.com/karsten/pillarcat/internal/extract"
	"github.com/karsten/pillarcat/internal/fetch"
	"github.com/karsten/pillarcat/internal/logger"
)

// Discovery methods, recorded on job progress for diagnostics.
const (
	DiscoveryMethodConfigured = "configured"
	DiscoveryMethodSitemap    = "sitemap"
	DiscoveryMethodAI         = "ai"
)

const (
	defaultMaxDiscoveredURLs = 500
	defaultAIPageBudget      = 10
)

// DiscoveryResult is the URL set produced by one discovery run.
type DiscoveryResult struct {
	URLs   []string
	Method string
}

// DiscoveryService finds candidate product page URLs on a manufacturer
// site. A configured product list URL wins; otherwise the sitemap is tried;
// AI-guided navigation is the fallback of last resort.
type DiscoveryService struct {
	fetcher   fetch.Fetcher
	extractor extract.Service

	maxURLs      int
	aiPageBudget int
}

// NewDiscoveryService creates a DiscoveryService.
func NewDiscoveryService(fetcher fetch.Fetcher, extractor extract.Service) *DiscoveryService {
	return &DiscoveryService{
		fetcher:      fetcher,
		extractor:    extractor,
		maxURLs:      defaultMaxDiscoveredURLs,
		aiPageBudget: defaultAIPageBudget,
	}
}

// Discover runs URL discovery for a manufacturer.
func (s *DiscoveryService) Discover(ctx context.Context, mfr *domain.Manufacturer) (*DiscoveryResult, error) {
	if cfg := mfr.ScraperConfig.Config; cfg != nil && cfg.ProductListURL != "" {
		urls, err := s.discoverConfigured(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &DiscoveryResult{URLs: urls, Method: DiscoveryMethodConfigured}, nil
	}

	if urls, err := s.discoverSitemap(ctx, mfr.WebsiteURL); err == nil && len(urls) > 0 {
		return &DiscoveryResult{URLs: urls, Method: DiscoveryMethodSitemap}, nil
	} else if err != nil {
		logger.FromContext(ctx).WithError(err).Debug("Sitemap discovery failed, falling back to AI navigation")
	}

	return s.DiscoverAI(ctx, mfr)
}

// DiscoverAI navigates the site with model-classified links under a fixed
// page budget. Used directly by the AI scrape entry point.
func (s *DiscoveryService) DiscoverAI(ctx context.Context, mfr *domain.Manufacturer) (*DiscoveryResult, error) {
	seen := map[string]bool{}
	products := map[string]bool{}
	queue := []string{mfr.WebsiteURL}

	for visited := 0; len(queue) > 0 && visited < s.aiPageBudget && len(products) < s.maxURLs; visited++ {
		pageURL := queue[0]
		queue = queue[1:]
		if seen[pageURL] {
			visited--
			continue
		}
		seen[pageURL] = true

		page, err := s.fetcher.FetchPage(ctx, pageURL)
		if err != nil {
			logger.FromContext(ctx).WithError(err).WithField("url", pageURL).Warn("Navigation page fetch failed")
			continue
		}

		links, err := s.extractor.IdentifyLinks(ctx, page, pageURL)
		if err != nil {
			logger.FromContext(ctx).WithError(err).WithField("url", pageURL).Warn("Link identification failed")
			continue
		}
		for _, u := range links.ProductURLs {
			products[u] = true
		}
		for _, u := range links.ListingURLs {
			if !seen[u] {
				queue = append(queue, u)
			}
		}
	}

	if len(products) == 0 {
		// An empty site is a valid outcome; the scrape completes with zero
		// products and the method on record.
		logger.FromContext(ctx).WithField("url", mfr.WebsiteURL).Info("AI navigation found no product pages")
		return &DiscoveryResult{Method: DiscoveryMethodAI}, nil
	}

	urls := make([]string, 0, len(products))
	for u := range products {
		urls = append(urls, u)
	}
	return &DiscoveryResult{URLs: capURLs(urls, s.maxURLs), Method: DiscoveryMethodAI}, nil
}

func (s *DiscoveryService) discoverConfigured(ctx context.Context, cfg *domain.ScraperConfig) ([]string, error) {
	page, err := s.fetcher.FetchPage(ctx, cfg.ProductListURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product list page: %w", err)
	}

	links := ExtractLinks(page, cfg.ProductListURL)
	if cfg.LinkSelector != "" {
		var filtered []string
		for _, l := range links {
			if strings.Contains(l, cfg.LinkSelector) {
				filtered = append(filtered, l)
			}
		}
		links = filtered
	}
	return capURLs(links, s.maxURLs), nil
}

type sitemapURLSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

func (s *DiscoveryService) discoverSitemap(ctx context.Context, websiteURL string) ([]string, error) {
	base, err := url.Parse(websiteURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid website URL %q", websiteURL)
	}

	sitemaps := s.sitemapLocations(ctx, base)

	var urls []string
	for _, loc := range sitemaps {
		body, err := s.fetcher.FetchPage(ctx, loc)
		if err != nil {
			continue
		}

		var index sitemapIndex
		if xml.Unmarshal([]byte(body), &index) == nil && len(index.Sitemaps) > 0 {
			// One level of sitemap index nesting is enough in practice.
			for _, sm := range index.Sitemaps {
				child, err := s.fetcher.FetchPage(ctx, strings.TrimSpace(sm.Loc))
				if err != nil {
					continue
				}
				urls = append(urls, parseURLSet(child)...)
				if len(urls) >= s.maxURLs {
					break
				}
			}
		} else {
			urls = append(urls, parseURLSet(body)...)
		}
		if len(urls) > 0 {
			break
		}
	}

	return capURLs(urls, s.maxURLs), nil
}

// sitemapLocations resolves sitemap URLs from robots.txt, falling back to
// the conventional /sitemap.xml.
func (s *DiscoveryService) sitemapLocations(ctx context.Context, base *url.URL) []string {
	fallback := base.Scheme + "://" + base.Host + "/sitemap.xml"

	robots, err := s.fetcher.FetchPage(ctx, base.Scheme+"://"+base.Host+"/robots.txt")
	if err != nil {
		return []string{fallback}
	}

	var locations []string
	for _, line := range strings.Split(robots, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(line), "sitemap:") {
			loc := strings.TrimSpace(line[len("sitemap:"):])
			if loc != "" {
				locations = append(locations, loc)
			}
		}
	}
	if len(locations) == 0 {
		return []string{fallback}
	}
	return locations
}

func parseURLSet(body string) []string {
	var set sitemapURLSet
	if err := xml.Unmarshal([]byte(body), &set); err != nil {
		return nil
	}
	urls := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc != "" {
			urls = append(urls, loc)
		}
	}
	return urls
}

// ExtractLinks returns the absolute, same-host link targets of a page.
func ExtractLinks(page, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := map[string]bool{}
	var links []string

	tokenizer := html.NewTokenizer(strings.NewReader(page))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return links
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := tokenizer.TagName()
		if string(name) != "a" || !hasAttr {
			continue
		}
		for {
			key, val, more := tokenizer.TagAttr()
			if string(key) == "href" {
				if link, ok := resolveLink(base, string(val)); ok && !seen[link] {
					seen[link] = true
					links = append(links, link)
				}
			}
			if !more {
				break
			}
		}
	}
}

func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Host != base.Host {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

func capURLs(urls []string, max int) []string {
	if len(urls) > max {
		return urls[:max]
	}
	return urls
}
