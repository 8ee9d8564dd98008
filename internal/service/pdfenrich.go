package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/karsten/pillarcat/internal/chunker"
	"github.com/karsten/pillarcat/internal/domain"
	"github.com/karsten/pillarcat/internal/events"
	"github.com/karsten/pillarcat/internal/logger"
	"github.com/karsten/pillarcat/internal/pdf"
	"github.com/karsten/pillarcat/internal/repository"
	"github.com/karsten/pillarcat/internal/storage"
)

const (
	// Excerpt stored on the file record.
	fileExcerptChars = 4000
	// Excerpt appended to the owning product's description.
	descriptionExcerptChars = 1500
)

// Downloader retrieves raw document bytes from a source URL.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// RestyDownloader downloads documents over plain HTTP.
type RestyDownloader struct {
	client *resty.Client
}

// NewRestyDownloader creates a Downloader with a per-download timeout.
func NewRestyDownloader(timeout time.Duration) *RestyDownloader {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	return &RestyDownloader{client: client}
}

// Download fetches the document at url.
func (d *RestyDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	resp, err := d.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("failed to download %s: HTTP %d", url, resp.StatusCode())
	}
	return resp.Body(), nil
}

// PDFEnrichOptions tunes the PDF enrichment batch.
type PDFEnrichOptions struct {
	BatchSize    int
	ChunkOptions chunker.Options
}

// PDFEnrichService downloads and parses linked PDF documents in bounded
// batches, enriching the owning products and feeding the knowledge base.
type PDFEnrichService struct {
	files      FileStore
	products   ProductStore
	chunks     ChunkStore
	store      storage.ObjectStorage
	downloader Downloader
	bus        events.Emitter
	opts       PDFEnrichOptions

	// Replaceable so tests do not need real PDF bytes.
	parse func(data []byte) (*pdf.Document, error)
}

// NewPDFEnrichService creates a PDFEnrichService. store may be nil, in
// which case archival is skipped.
func NewPDFEnrichService(
	files FileStore,
	products ProductStore,
	chunks ChunkStore,
	store storage.ObjectStorage,
	downloader Downloader,
	bus events.Emitter,
	opts PDFEnrichOptions,
) *PDFEnrichService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	return &PDFEnrichService{
		files:      files,
		products:   products,
		chunks:     chunks,
		store:      store,
		downloader: downloader,
		bus:        bus,
		opts:       opts,
		parse:      pdf.ExtractText,
	}
}

// HandlePDFParse processes a pdf_parse.requested event: one batch of
// unparsed PDF files, oldest first.
func (s *PDFEnrichService) HandlePDFParse(ctx context.Context, p events.Payload) error {
	scope := repository.Scope{ManufacturerID: p.ManufacturerID, OrganizationID: p.OrganizationID}
	log := logger.FromContext(ctx).WithField(logger.FieldManufacturerID, p.ManufacturerID)

	batch, err := s.files.ListUnparsedPDFs(ctx, scope, s.opts.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list PDF backlog: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}

	var enriched, empty, failed, processed int
	for i := range batch {
		file := &batch[i]
		switch outcome := s.enrichOne(ctx, file); outcome {
		case enrichOutcomeEnriched:
			enriched++
			processed++
		case enrichOutcomeEmpty:
			empty++
			processed++
		default:
			failed++
		}
	}

	log.WithFields(logger.Fields{
		"enriched": enriched,
		"empty":    empty,
		"failed":   failed,
	}).Info("PDF enrichment batch finished")

	remaining, err := s.files.CountUnparsedPDFs(ctx, scope)
	if err != nil {
		return fmt.Errorf("failed to count PDF backlog: %w", err)
	}
	if remaining > 0 && processed > 0 {
		if err := s.bus.Emit(ctx, events.PDFParseRequested, p); err != nil {
			return fmt.Errorf("failed to self-continue PDF enrichment: %w", err)
		}
	}

	// Enriched products carry fresh text; hand them back to normalization.
	if enriched > 0 {
		scopePayload := events.Payload{ManufacturerID: p.ManufacturerID, OrganizationID: p.OrganizationID}
		if err := s.bus.Emit(ctx, events.NormalizeRequested, scopePayload); err != nil {
			log.WithError(err).Error("Failed to emit normalization for enriched products")
		}
	}

	return nil
}

type enrichOutcome int

const (
	enrichOutcomeFailed enrichOutcome = iota
	enrichOutcomeEmpty
	enrichOutcomeEnriched
)

func (s *PDFEnrichService) enrichOne(ctx context.Context, file *domain.ProductFile) enrichOutcome {
	log := logger.FromContext(ctx).WithField("file_id", file.ID)

	data, err := s.downloader.Download(ctx, file.SourceURL)
	if err != nil {
		// Left unparsed; a later batch retries the download.
		log.WithError(err).Warn("PDF download failed")
		return enrichOutcomeFailed
	}

	doc, err := s.parse(data)
	if err != nil || strings.TrimSpace(doc.Text()) == "" {
		// Unreadable and empty files get the explicit empty marker so they
		// are never retried.
		if err != nil {
			log.WithError(err).Warn("PDF parse failed, marking empty")
		}
		marker := domain.ParsedContentEmpty
		file.ParsedContent = &marker
		if updateErr := s.files.Update(ctx, file); updateErr != nil {
			log.WithError(updateErr).Error("Failed to persist empty marker")
			return enrichOutcomeFailed
		}
		return enrichOutcomeEmpty
	}

	text := doc.Text()
	excerpt := truncate(text, fileExcerptChars)
	file.ParsedContent = &excerpt
	file.PageCount = doc.PageCount

	product, productErr := s.products.GetByID(ctx, file.ProductID)
	if productErr != nil {
		log.WithError(productErr).Warn("Owning product not found")
	}

	// Best-effort archival; the source URL stays the system of record.
	if s.store != nil && product != nil {
		key := storage.ArchiveKey(product.ManufacturerID, file.ID, file.SourceURL)
		if err := s.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
			log.WithError(err).Warn("Archival failed")
		} else {
			file.StoragePath = key
		}
	}

	if err := s.files.Update(ctx, file); err != nil {
		log.WithError(err).Error("Failed to persist parsed content")
		return enrichOutcomeFailed
	}

	if err := s.ingestChunks(ctx, file.ID, doc); err != nil {
		log.WithError(err).Warn("Chunk ingestion failed")
	}

	if product != nil {
		description := product.Description + "\n\n[" + string(file.Category) + " excerpt]\n" + truncate(text, descriptionExcerptChars)
		err := s.products.UpdateColumns(ctx, product.ID, map[string]interface{}{
			"description":   description,
			"normalized_at": nil,
			"needs_review":  true,
		})
		if err != nil {
			log.WithError(err).Error("Failed to enrich product description")
		}
	}

	return enrichOutcomeEnriched
}

// ingestChunks writes a fresh chunk generation for the parsed document.
func (s *PDFEnrichService) ingestChunks(ctx context.Context, documentID string, doc *pdf.Document) error {
	if s.chunks == nil {
		return nil
	}

	generation, err := s.chunks.NextGeneration(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to allocate chunk generation: %w", err)
	}

	pages := make([]chunker.Page, 0, len(doc.Pages))
	for _, p := range doc.Pages {
		pages = append(pages, chunker.Page{Number: p.Number, Text: p.Text})
	}

	pieces := chunker.ChunkPages(pages, s.opts.ChunkOptions)
	rows := make([]domain.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		var metadata domain.JSONMap
		if piece.FireTest {
			metadata = domain.JSONMap{"fire_test_block": true}
		}
		rows = append(rows, domain.Chunk{
			ID:         uuid.New().String(),
			DocumentID: documentID,
			Generation: generation,
			Text:       piece.Text,
			ChunkType:  piece.Type,
			Page:       piece.Page,
			ChunkIndex: piece.Index,
			Metadata:   metadata,
		})
	}

	return s.chunks.CreateBatch(ctx, rows)
}

// truncate cuts text to at most max bytes without splitting a UTF-8 rune.
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
