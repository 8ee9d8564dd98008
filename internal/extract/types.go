package extract

import (
	"context"

	"github.com/karsten/pillarcat/internal/domain"
)

// StructuredProduct is one product candidate extracted from a page.
type StructuredProduct struct {
	Code           string            `json:"code"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Specifications map[string]string `json:"specifications"`
	FileURLs       []string          `json:"file_urls"`
	RawText        string            `json:"raw_text"`
	SourceURL      string            `json:"source_url"`
}

// FieldResult is the outcome of mapping raw text against a pillar schema.
// Confidence is reported, not guaranteed; warnings carry anything the model
// flagged as ambiguous.
type FieldResult struct {
	Specifications map[string]string `json:"specifications"`
	Confidence     int               `json:"confidence"`
	Warnings       []string          `json:"warnings"`
}

// LinkResult is the outcome of AI-guided link identification on a
// navigation page.
type LinkResult struct {
	ProductURLs []string `json:"product_urls"`
	ListingURLs []string `json:"listing_urls"`
}

// Service converts unstructured page content into structured records.
// Implementations must be safe for concurrent use.
type Service interface {
	// ExtractProduct converts page markup into a product candidate.
	// Returns (nil, nil) when the page is not a product page.
	ExtractProduct(ctx context.Context, html, pageURL, manufacturerName string) (*StructuredProduct, error)

	// ExtractFields maps raw product text onto a category field schema.
	ExtractFields(ctx context.Context, rawText string, schema *domain.PillarSchema) (*FieldResult, error)

	// IdentifyLinks classifies the links of a navigation page for
	// AI-guided discovery.
	IdentifyLinks(ctx context.Context, html, baseURL string) (*LinkResult, error)
}
