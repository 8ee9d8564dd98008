package repository

import (
	"context"
	"time"

	"github.com/karsten/pillarcat/internal/domain"
	"gorm.io/gorm"
)

// ManufacturerRepository handles manufacturer data operations.
type ManufacturerRepository struct {
	db *gorm.DB
}

// NewManufacturerRepository creates a new ManufacturerRepository.
func NewManufacturerRepository(db *gorm.DB) *ManufacturerRepository {
	return &ManufacturerRepository{db: db}
}

// GetByID retrieves a manufacturer by its ID, including scraper configuration.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: manufacturer ID.
// Returns:
//   - *domain.Manufacturer: manufacturer record if found.
//   - error: non-nil if lookup fails.
func (r *ManufacturerRepository) GetByID(ctx context.Context, id string) (*domain.Manufacturer, error) {
	var m domain.Manufacturer
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts a new manufacturer record.
func (r *ManufacturerRepository) Create(ctx context.Context, m *domain.Manufacturer) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// TouchLastScraped records a completed scrape for the manufacturer.
func (r *ManufacturerRepository) TouchLastScraped(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Manufacturer{}).
		Where("id = ?", id).
		Update("last_scraped_at", at).Error
}
