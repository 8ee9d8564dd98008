// Package service implements the pipeline components. Each component is
// invoked by one event name and runs one bounded batch to completion,
// handing further work to other components (or to itself) through emitted
// events.
package service

import (
	"context"
	"time"

	"github.com/karsten/pillarcat/internal/domain"
	"github.com/karsten/pillarcat/internal/repository"
)

// The store interfaces below are the slices of the repository layer each
// component actually touches. Services depend on these instead of concrete
// repositories so tests can substitute in-memory fakes.

// ManufacturerStore provides manufacturer lookups for the scrape component.
type ManufacturerStore interface {
	GetByID(ctx context.Context, id string) (*domain.Manufacturer, error)
	TouchLastScraped(ctx context.Context, id string, at time.Time) error
}

// ProductStore provides product reads and writes for the batch components.
type ProductStore interface {
	Create(ctx context.Context, p *domain.Product) error
	Update(ctx context.Context, p *domain.Product) error
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	GetByCode(ctx context.Context, manufacturerID, code string) (*domain.Product, error)
	ListUnnormalized(ctx context.Context, scope repository.Scope, limit int) ([]domain.Product, error)
	CountUnnormalized(ctx context.Context, scope repository.Scope) (int64, error)
	ListWithoutEmbedding(ctx context.Context, scope repository.Scope, limit int) ([]domain.Product, error)
	UpdateColumns(ctx context.Context, id string, values map[string]interface{}) error
}

// FileStore provides product file reads and writes.
type FileStore interface {
	Create(ctx context.Context, f *domain.ProductFile) error
	Update(ctx context.Context, f *domain.ProductFile) error
	DeleteAutoAttached(ctx context.Context, productID string) error
	ListUnparsedPDFs(ctx context.Context, scope repository.Scope, limit int) ([]domain.ProductFile, error)
	CountUnparsedPDFs(ctx context.Context, scope repository.Scope) (int64, error)
}

// SchemaStore provides pillar schema lookups for normalization.
type SchemaStore interface {
	GetByPillar(ctx context.Context, pillar string) (*domain.PillarSchema, error)
}

// JobStore provides scrape job lifecycle updates.
type JobStore interface {
	GetByID(ctx context.Context, id string) (*domain.ScrapeJob, error)
	MarkRunning(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, progress domain.JobProgress) error
	Complete(ctx context.Context, id string, created, updated int, progress domain.JobProgress) error
	Fail(ctx context.Context, id string, message string) error
	AppendError(ctx context.Context, id string, message string) error
}

// ChunkStore persists knowledge-base chunk generations.
type ChunkStore interface {
	NextGeneration(ctx context.Context, documentID string) (int, error)
	CreateBatch(ctx context.Context, chunks []domain.Chunk) error
}

// VectorStore mirrors product embeddings into the similarity index.
type VectorStore interface {
	Upsert(ctx context.Context, pointID string, vector []float32, payload *repository.ProductPayload) error
}
