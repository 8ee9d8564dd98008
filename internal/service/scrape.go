package service

import (
	"context"
	"fmt"
	"time"

	"github.com/karsten/pillarcat/internal/domain"
	"github.com/karsten/pillarcat/internal/events"
	"github.com/karsten/pillarcat/internal/extract"
	"github.com/karsten/pillarcat/internal/fetch"
	"github.com/karsten/pillarcat/internal/logger"
)

// Discoverer finds candidate product URLs for a manufacturer.
type Discoverer interface {
	Discover(ctx context.Context, mfr *domain.Manufacturer) (*DiscoveryResult, error)
	DiscoverAI(ctx context.Context, mfr *domain.Manufacturer) (*DiscoveryResult, error)
}

// CatalogWriter persists one extracted candidate.
type CatalogWriter interface {
	Upsert(ctx context.Context, mfr *domain.Manufacturer, c *extract.StructuredProduct) (bool, error)
}

// ScrapeOptions tunes the fetch-and-extract driver.
type ScrapeOptions struct {
	FetchBatchSize int
	// ExtractBatchSize is how many pages are processed between job progress
	// writes, so a polling UI sees movement during long extraction runs.
	ExtractBatchSize int
	// CallDelay is the fixed pause between extraction calls. Throughput is
	// deliberately sacrificed for predictable provider rate compliance.
	CallDelay time.Duration
}

// ScrapeService runs one manufacturer scrape to completion: discovery,
// batched fetching, sequential extraction, idempotent upsert.
type ScrapeService struct {
	manufacturers ManufacturerStore
	jobs          JobStore
	discovery     Discoverer
	fetcher       fetch.Fetcher
	extractor     extract.Service
	catalog       CatalogWriter
	bus           events.Emitter
	opts          ScrapeOptions
}

// NewScrapeService creates a ScrapeService.
func NewScrapeService(
	manufacturers ManufacturerStore,
	jobs JobStore,
	discovery Discoverer,
	fetcher fetch.Fetcher,
	extractor extract.Service,
	catalog CatalogWriter,
	bus events.Emitter,
	opts ScrapeOptions,
) *ScrapeService {
	if opts.FetchBatchSize <= 0 {
		opts.FetchBatchSize = 50
	}
	if opts.ExtractBatchSize <= 0 {
		opts.ExtractBatchSize = 10
	}
	return &ScrapeService{
		manufacturers: manufacturers,
		jobs:          jobs,
		discovery:     discovery,
		fetcher:       fetcher,
		extractor:     extractor,
		catalog:       catalog,
		bus:           bus,
		opts:          opts,
	}
}

// HandleScrape processes a scrape.requested event.
func (s *ScrapeService) HandleScrape(ctx context.Context, p events.Payload) error {
	return s.run(ctx, p, false)
}

// HandleScrapeAI processes a scrape_ai.requested event, forcing AI-guided
// discovery regardless of manufacturer configuration.
func (s *ScrapeService) HandleScrapeAI(ctx context.Context, p events.Payload) error {
	return s.run(ctx, p, true)
}

func (s *ScrapeService) run(ctx context.Context, p events.Payload, forceAI bool) error {
	ctx = logger.SetJobID(ctx, p.JobID)
	log := logger.FromContext(ctx).WithField(logger.FieldManufacturerID, p.ManufacturerID)

	if p.JobID != "" {
		if err := s.jobs.MarkRunning(ctx, p.JobID); err != nil {
			log.WithError(err).Warn("Failed to mark job running")
		}
	}

	mfr, err := s.manufacturers.GetByID(ctx, p.ManufacturerID)
	if err != nil {
		// Configuration errors are terminal for the job; redelivering the
		// event cannot fix them.
		s.failJob(ctx, p.JobID, fmt.Sprintf("manufacturer %s not found", p.ManufacturerID))
		return nil
	}

	cfg := mfr.ScraperConfig.Config
	if mfr.WebsiteURL == "" && (cfg == nil || cfg.ProductListURL == "") {
		s.failJob(ctx, p.JobID, "No website URL configured")
		return nil
	}

	s.updateProgress(ctx, p.JobID, domain.JobProgress{Stage: "discovering"})

	var result *DiscoveryResult
	if forceAI {
		result, err = s.discovery.DiscoverAI(ctx, mfr)
	} else {
		result, err = s.discovery.Discover(ctx, mfr)
	}
	if err != nil {
		s.failJob(ctx, p.JobID, fmt.Sprintf("discovery failed: %v", err))
		return nil
	}
	log.WithFields(logger.Fields{
		logger.FieldCount: len(result.URLs),
		"method":          result.Method,
	}).Info("Discovery finished")

	stats := map[string]int{
		"urls_found":     len(result.URLs),
		"pages_fetched":  0,
		"fetch_failed":   0,
		"extracted":      0,
		"non_product":    0,
		"extract_failed": 0,
		"persist_failed": 0,
	}
	var created, updated, handled int
	firstCall := true

	progress := domain.JobProgress{
		Stage:  "scraping",
		Method: result.Method,
		Total:  len(result.URLs),
		Stats:  stats,
	}
	s.updateProgress(ctx, p.JobID, progress)

	for start := 0; start < len(result.URLs); start += s.opts.FetchBatchSize {
		end := start + s.opts.FetchBatchSize
		if end > len(result.URLs) {
			end = len(result.URLs)
		}
		batch := result.URLs[start:end]

		pages, err := s.fetcher.FetchBatch(ctx, batch)
		if err != nil {
			stats["fetch_failed"] += len(batch)
			handled += len(batch)
			s.appendJobError(ctx, p.JobID, fmt.Sprintf("fetch batch failed: %v", err))
			continue
		}

		for _, page := range pages {
			if handled > 0 && handled%s.opts.ExtractBatchSize == 0 {
				progress.Current = handled
				progress.Found = stats["extracted"]
				s.updateProgress(ctx, p.JobID, progress)
			}
			handled++
			if page.HTML == nil {
				stats["fetch_failed"]++
				continue
			}
			stats["pages_fetched"]++

			// Extraction calls are strictly sequential with a fixed delay.
			if !firstCall && s.opts.CallDelay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.opts.CallDelay):
				}
			}
			firstCall = false

			candidate, err := s.extractor.ExtractProduct(ctx, *page.HTML, page.URL, mfr.Name)
			if err != nil {
				stats["extract_failed"]++
				s.appendJobError(ctx, p.JobID, fmt.Sprintf("extraction failed for %s: %v", page.URL, err))
				continue
			}
			if candidate == nil {
				stats["non_product"]++
				continue
			}
			stats["extracted"]++

			wasCreated, err := s.catalog.Upsert(ctx, mfr, candidate)
			if err != nil {
				stats["persist_failed"]++
				s.appendJobError(ctx, p.JobID, fmt.Sprintf("upsert failed for %s: %v", page.URL, err))
				continue
			}
			if wasCreated {
				created++
			} else {
				updated++
			}
		}

		progress.Current = end
		progress.Found = stats["extracted"]
		s.updateProgress(ctx, p.JobID, progress)
	}

	if err := s.manufacturers.TouchLastScraped(ctx, mfr.ID, time.Now()); err != nil {
		log.WithError(err).Warn("Failed to record scrape time")
	}

	progress.Stage = "completed"
	progress.Current = len(result.URLs)
	if p.JobID != "" {
		if err := s.jobs.Complete(ctx, p.JobID, created, updated, progress); err != nil {
			log.WithError(err).Error("Failed to complete job")
		}
	}

	log.WithFields(logger.Fields{
		"created": created,
		"updated": updated,
		"stats":   stats,
	}).Info("Scrape finished")

	// Hand off downstream enrichment for everything written this run.
	scope := events.Payload{ManufacturerID: mfr.ID, OrganizationID: mfr.OrganizationID}
	for _, name := range []string{events.NormalizeRequested, events.PDFParseRequested, events.EmbeddingsRequested} {
		if err := s.bus.Emit(ctx, name, scope); err != nil {
			log.WithError(err).WithField(logger.FieldEvent, name).Error("Failed to emit follow-up event")
		}
	}

	return nil
}

func (s *ScrapeService) failJob(ctx context.Context, jobID, message string) {
	logger.FromContext(ctx).WithField(logger.FieldStatus, domain.JobStatusFailed).Error(message)
	if jobID == "" {
		return
	}
	if err := s.jobs.Fail(ctx, jobID, message); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to mark job failed")
	}
}

func (s *ScrapeService) appendJobError(ctx context.Context, jobID, message string) {
	logger.FromContext(ctx).Warn(message)
	if jobID == "" {
		return
	}
	if err := s.jobs.AppendError(ctx, jobID, message); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to append job error")
	}
}

func (s *ScrapeService) updateProgress(ctx context.Context, jobID string, progress domain.JobProgress) {
	if jobID == "" {
		return
	}
	if err := s.jobs.UpdateProgress(ctx, jobID, progress); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to update job progress")
	}
}
