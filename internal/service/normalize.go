package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/karsten/pillarcat/internal/domain"
	"github.com/karsten/pillarcat/internal/events"
	"github.com/karsten/pillarcat/internal/extract"
	"github.com/karsten/pillarcat/internal/logger"
	"github.com/karsten/pillarcat/internal/repository"
)

// Confidence below this marks a product for human review even without
// schema warnings.
const reviewConfidenceThreshold = 50

// NormalizeService maps raw scraped product text onto pillar schemas in
// bounded batches, self-continuing until the backlog in scope is drained.
type NormalizeService struct {
	products  ProductStore
	schemas   SchemaStore
	extractor extract.Service
	bus       events.Emitter
	batchSize int
	// callDelay is the fixed pause between field extraction calls, shared
	// with the scrape path so both honor the same provider rate ceiling.
	callDelay time.Duration
}

// NewNormalizeService creates a NormalizeService.
func NewNormalizeService(products ProductStore, schemas SchemaStore, extractor extract.Service, bus events.Emitter, batchSize int, callDelay time.Duration) *NormalizeService {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &NormalizeService{
		products:  products,
		schemas:   schemas,
		extractor: extractor,
		bus:       bus,
		batchSize: batchSize,
		callDelay: callDelay,
	}
}

// HandleNormalize processes a normalize.requested event: one batch of
// unnormalized products, oldest first.
func (s *NormalizeService) HandleNormalize(ctx context.Context, p events.Payload) error {
	scope := repository.Scope{ManufacturerID: p.ManufacturerID, OrganizationID: p.OrganizationID}
	log := logger.FromContext(ctx).WithField(logger.FieldManufacturerID, p.ManufacturerID)

	batch, err := s.products.ListUnnormalized(ctx, scope, s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list normalization backlog: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}

	// Schemas are cached per invocation; a batch rarely spans many pillars.
	schemaCache := map[string]*domain.PillarSchema{}
	processed := 0

	for i := range batch {
		product := &batch[i]
		if i > 0 && s.callDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.callDelay):
			}
		}
		if err := s.normalizeOne(ctx, product, schemaCache); err != nil {
			log.WithError(err).WithField("product_id", product.ID).Warn("Normalization failed for product")
			continue
		}
		processed++
	}

	log.WithFields(logger.Fields{
		logger.FieldCount: processed,
		"batch":           len(batch),
	}).Info("Normalization batch finished")

	remaining, err := s.products.CountUnnormalized(ctx, scope)
	if err != nil {
		return fmt.Errorf("failed to count normalization backlog: %w", err)
	}
	// Self-continue only when this batch made progress, otherwise a batch of
	// permanently failing products would re-emit forever.
	if remaining > 0 && processed > 0 {
		if err := s.bus.Emit(ctx, events.NormalizeRequested, p); err != nil {
			return fmt.Errorf("failed to self-continue normalization: %w", err)
		}
	}

	return nil
}

func (s *NormalizeService) normalizeOne(ctx context.Context, product *domain.Product, cache map[string]*domain.PillarSchema) error {
	now := time.Now()

	schema, err := s.schemaFor(ctx, product.Pillar, cache)
	if err != nil {
		return err
	}
	if schema == nil {
		// No schema for the category: record the gap and move on so the
		// product does not pin the backlog open.
		return s.products.UpdateColumns(ctx, product.ID, map[string]interface{}{
			"warnings":      domain.StringArray{fmt.Sprintf("no schema configured for pillar %q", product.Pillar)},
			"confidence":    0,
			"needs_review":  true,
			"normalized_at": &now,
		})
	}

	result, err := s.extractor.ExtractFields(ctx, product.RawText(), schema)
	if err != nil {
		return fmt.Errorf("field extraction failed: %w", err)
	}

	warnings := append(domain.StringArray{}, result.Warnings...)
	warnings = append(warnings, ValidateSpecifications(schema, result.Specifications)...)

	merged := mergeSpecifications(product.Specifications, result.Specifications)
	needsReview := len(warnings) > 0 || result.Confidence < reviewConfidenceThreshold

	return s.products.UpdateColumns(ctx, product.ID, map[string]interface{}{
		"specifications": merged,
		"confidence":     result.Confidence,
		"warnings":       warnings,
		"needs_review":   needsReview,
		"normalized_at":  &now,
	})
}

func (s *NormalizeService) schemaFor(ctx context.Context, pillar string, cache map[string]*domain.PillarSchema) (*domain.PillarSchema, error) {
	if pillar == "" {
		return nil, nil
	}
	if schema, ok := cache[pillar]; ok {
		return schema, nil
	}
	schema, err := s.schemas.GetByPillar(ctx, pillar)
	if err != nil {
		// A missing schema is a data gap, not a transient failure.
		cache[pillar] = nil
		return nil, nil
	}
	cache[pillar] = schema
	return schema, nil
}

// ValidateSpecifications checks extracted values against a schema. Schemas
// are closed but tolerant: every mismatch becomes a warning, never a
// rejected write.
func ValidateSpecifications(schema *domain.PillarSchema, specs map[string]string) domain.StringArray {
	var warnings domain.StringArray

	for _, required := range schema.Required {
		if v, ok := specs[required]; !ok || v == "" {
			warnings = append(warnings, fmt.Sprintf("required field %q missing", required))
		}
	}

	for name, value := range specs {
		def, ok := schema.Field(name)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unknown field %q", name))
			continue
		}
		switch def.Type {
		case domain.FieldTypeNumber:
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				warnings = append(warnings, fmt.Sprintf("field %q expects a number, got %q", name, value))
			}
		case domain.FieldTypeEnum:
			if !contains(def.AllowedValues, value) {
				warnings = append(warnings, fmt.Sprintf("field %q has value %q outside allowed values", name, value))
			}
		case domain.FieldTypeBool:
			if _, err := strconv.ParseBool(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("field %q expects a boolean, got %q", name, value))
			}
		}
	}

	return warnings
}

// mergeSpecifications overlays normalized values on the raw scraped map.
// Normalized schema fields win on conflict.
func mergeSpecifications(raw domain.StringMap, normalized map[string]string) domain.StringMap {
	merged := domain.StringMap{}
	for k, v := range raw {
		merged[k] = v
	}
	for k, v := range normalized {
		merged[k] = v
	}
	return merged
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
