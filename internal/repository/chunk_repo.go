package repository

import (
	"context"

	"github.com/karsten/pillarcat/internal/domain"
	"gorm.io/gorm"
)

// ChunkRepository persists knowledge-base chunks.
type ChunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// NextGeneration returns the generation number to use for a fresh ingestion
// of the document. Existing chunks are never mutated; re-ingestion writes a
// new generation.
func (r *ChunkRepository) NextGeneration(ctx context.Context, documentID string) (int, error) {
	var max int
	err := r.db.WithContext(ctx).Model(&domain.Chunk{}).
		Where("document_id = ?", documentID).
		Select("COALESCE(MAX(generation), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// CreateBatch inserts all chunks of one document generation.
func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(chunks, 100).Error
}

// ListByDocument retrieves the chunks of a document generation in index order.
func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string, generation int) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	if err := r.db.WithContext(ctx).
		Where("document_id = ? AND generation = ?", documentID, generation).
		Order("chunk_index ASC").
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}
