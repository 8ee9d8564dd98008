package repository

import (
	"context"

	"github.com/karsten/pillarcat/internal/domain"
	"gorm.io/gorm"
)

// SchemaRepository handles pillar schema lookups.
type SchemaRepository struct {
	db *gorm.DB
}

// NewSchemaRepository creates a new SchemaRepository.
func NewSchemaRepository(db *gorm.DB) *SchemaRepository {
	return &SchemaRepository{db: db}
}

// GetByPillar retrieves the schema for a category key.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - pillar: product category key.
// Returns:
//   - *domain.PillarSchema: schema record if found.
//   - error: gorm.ErrRecordNotFound if no schema exists for the pillar.
func (r *SchemaRepository) GetByPillar(ctx context.Context, pillar string) (*domain.PillarSchema, error) {
	var s domain.PillarSchema
	if err := r.db.WithContext(ctx).First(&s, "pillar = ?", pillar).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new schema record.
func (r *SchemaRepository) Create(ctx context.Context, s *domain.PillarSchema) error {
	return r.db.WithContext(ctx).Create(s).Error
}
