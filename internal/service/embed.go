package service

import (
	"context"
	"fmt"

	"github.com/karsten/pillarcat/internal/domain"
	"github.com/karsten/pillarcat/internal/events"
	"github.com/karsten/pillarcat/internal/logger"
	"github.com/karsten/pillarcat/internal/repository"
)

// EmbedService computes embedding vectors for products in bounded batches.
// Unlike normalization and PDF enrichment it does not drain its own backlog;
// upstream events re-trigger it as new products appear.
type EmbedService struct {
	products  ProductStore
	vectors   VectorStore
	embedder  Embedder
	batchSize int
}

// NewEmbedService creates an EmbedService. vectors may be nil when no
// similarity index is configured.
func NewEmbedService(products ProductStore, vectors VectorStore, embedder Embedder, batchSize int) *EmbedService {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &EmbedService{
		products:  products,
		vectors:   vectors,
		embedder:  embedder,
		batchSize: batchSize,
	}
}

// HandleEmbeddings processes an embeddings.requested event: one batch of
// products without vectors.
func (s *EmbedService) HandleEmbeddings(ctx context.Context, p events.Payload) error {
	scope := repository.Scope{ManufacturerID: p.ManufacturerID, OrganizationID: p.OrganizationID}
	log := logger.FromContext(ctx).WithField(logger.FieldManufacturerID, p.ManufacturerID)

	batch, err := s.products.ListWithoutEmbedding(ctx, scope, s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list embedding backlog: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}

	var embedded, failed int
	for i := range batch {
		product := &batch[i]

		vector, err := s.embedder.Embed(ctx, EmbeddingText(product))
		if err != nil {
			failed++
			log.WithError(err).WithField("product_id", product.ID).Warn("Embedding failed for product")
			continue
		}

		err = s.products.UpdateColumns(ctx, product.ID, map[string]interface{}{
			"embedding": domain.Vector(vector),
		})
		if err != nil {
			failed++
			log.WithError(err).WithField("product_id", product.ID).Warn("Failed to store embedding")
			continue
		}
		embedded++

		// The similarity index mirror is best effort; the row vector is the
		// durable copy.
		if s.vectors != nil {
			err := s.vectors.Upsert(ctx, product.ID, vector, &repository.ProductPayload{
				ProductID:      product.ID,
				ManufacturerID: product.ManufacturerID,
				OrganizationID: product.OrganizationID,
				Pillar:         product.Pillar,
				Code:           product.Code,
				Name:           product.Name,
			})
			if err != nil {
				log.WithError(err).WithField("product_id", product.ID).Warn("Failed to mirror vector")
			}
		}
	}

	log.WithFields(logger.Fields{
		"embedded": embedded,
		"failed":   failed,
	}).Info("Embedding batch finished")

	return nil
}
