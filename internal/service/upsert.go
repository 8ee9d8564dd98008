package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/karsten/pillarcat/internal/domain"
	"github.com/karsten/pillarcat/internal/extract"
	"github.com/karsten/pillarcat/internal/logger"
)

// Upserter writes extracted product candidates into the catalog. The
// (manufacturer_id, code) pair is the sole dedup key: upserting the same
// candidate twice converges to one row.
type Upserter struct {
	products ProductStore
	files    FileStore
}

// NewUpserter creates an Upserter over the given stores.
func NewUpserter(products ProductStore, files FileStore) *Upserter {
	return &Upserter{products: products, files: files}
}

// Upsert creates or updates the product for a candidate and replaces its
// auto-attached files. Returns whether a new row was created.
func (u *Upserter) Upsert(ctx context.Context, mfr *domain.Manufacturer, c *extract.StructuredProduct) (bool, error) {
	code := DeriveCode(c)
	if code == "" {
		return false, fmt.Errorf("candidate from %s has neither code nor name", c.SourceURL)
	}

	existing, err := u.products.GetByCode(ctx, mfr.ID, code)
	switch {
	case err == nil:
		if err := u.update(ctx, existing, c); err != nil {
			return false, err
		}
		return false, u.replaceFiles(ctx, existing.ID, c.FileURLs)
	case errors.Is(err, gorm.ErrRecordNotFound):
		product, err := u.create(ctx, mfr, code, c)
		if err != nil {
			return false, err
		}
		return true, u.replaceFiles(ctx, product.ID, c.FileURLs)
	default:
		return false, fmt.Errorf("failed to look up product %s: %w", code, err)
	}
}

func (u *Upserter) create(ctx context.Context, mfr *domain.Manufacturer, code string, c *extract.StructuredProduct) (*domain.Product, error) {
	product := &domain.Product{
		ID:             uuid.New().String(),
		ManufacturerID: mfr.ID,
		OrganizationID: mfr.OrganizationID,
		Pillar:         mfr.DefaultPillar,
		Code:           code,
		Name:           c.Name,
		Description:    c.Description,
		Specifications: domain.StringMap(c.Specifications),
		RawPayload:     rawPayload(c),
		Status:         domain.ProductStatusDraft,
	}
	if err := u.products.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product %s: %w", code, err)
	}
	return product, nil
}

func (u *Upserter) update(ctx context.Context, existing *domain.Product, c *extract.StructuredProduct) error {
	existing.Name = c.Name
	existing.Description = c.Description
	existing.Specifications = domain.StringMap(c.Specifications)
	existing.RawPayload = rawPayload(c)
	// Fresh source data invalidates the previous normalization result and
	// needs a human pass before republishing.
	existing.NormalizedAt = nil
	existing.NeedsReview = true
	if err := u.products.Update(ctx, existing); err != nil {
		return fmt.Errorf("failed to update product %s: %w", existing.Code, err)
	}
	return nil
}

// replaceFiles swaps the auto-attached files of a product for the ones found
// in the current scrape. Files attached by a human are left alone.
func (u *Upserter) replaceFiles(ctx context.Context, productID string, urls []string) error {
	if err := u.files.DeleteAutoAttached(ctx, productID); err != nil {
		return fmt.Errorf("failed to clear auto-attached files: %w", err)
	}
	for _, rawURL := range urls {
		file := &domain.ProductFile{
			ID:           uuid.New().String(),
			ProductID:    productID,
			SourceURL:    rawURL,
			ContentType:  ContentTypeFor(rawURL),
			Category:     CategorizeFile(rawURL),
			AutoAttached: true,
		}
		if err := u.files.Create(ctx, file); err != nil {
			logger.FromContext(ctx).WithError(err).WithField("url", rawURL).Warn("Failed to attach file")
		}
	}
	return nil
}

func rawPayload(c *extract.StructuredProduct) domain.JSONMap {
	return domain.JSONMap{
		"raw_text":   c.RawText,
		"source_url": c.SourceURL,
	}
}

const maxCodeLength = 64

var slugCleanRe = regexp.MustCompile(`[^a-z0-9]+`)

// DeriveCode returns the dedup code for a candidate: the manufacturer code
// when present, otherwise a slug of the product name.
func DeriveCode(c *extract.StructuredProduct) string {
	code := strings.TrimSpace(c.Code)
	if code == "" {
		code = Slugify(c.Name)
	}
	if len(code) > maxCodeLength {
		code = code[:maxCodeLength]
	}
	return strings.Trim(code, "-")
}

// Slugify lowercases a name and collapses every non-alphanumeric run into a
// single hyphen.
func Slugify(name string) string {
	slug := slugCleanRe.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}

// CategorizeFile guesses the document category from its URL.
func CategorizeFile(rawURL string) domain.FileCategory {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.Contains(lower, "datasheet") || strings.Contains(lower, "data-sheet") || strings.Contains(lower, "technical"):
		return domain.FileCategoryDatasheet
	case strings.Contains(lower, "cert") || strings.Contains(lower, "declaration") || strings.Contains(lower, "dop"):
		return domain.FileCategoryCertificate
	case strings.Contains(lower, "install") || strings.Contains(lower, "fitting") || strings.Contains(lower, "mounting"):
		return domain.FileCategoryInstallation
	case strings.Contains(lower, "brochure") || strings.Contains(lower, "catalog"):
		return domain.FileCategoryBrochure
	default:
		return domain.FileCategoryOther
	}
}

// ContentTypeFor guesses the content type of a linked file from its URL.
func ContentTypeFor(rawURL string) string {
	lower := strings.ToLower(rawURL)
	if idx := strings.IndexAny(lower, "?#"); idx >= 0 {
		lower = lower[:idx]
	}
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
