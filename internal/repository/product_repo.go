package repository

import (
	"context"

	"github.com/karsten/pillarcat/internal/domain"
	"gorm.io/gorm"
)

// Scope narrows batch queries to a manufacturer or organization.
// Zero-value scope means unscoped.
type Scope struct {
	ManufacturerID string
	OrganizationID string
}

func (s Scope) apply(q *gorm.DB) *gorm.DB {
	if s.ManufacturerID != "" {
		q = q.Where("manufacturer_id = ?", s.ManufacturerID)
	}
	if s.OrganizationID != "" {
		q = q.Where("organization_id = ?", s.OrganizationID)
	}
	return q
}

// ProductRepository handles product data operations.
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new ProductRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ProductRepository: repository instance bound to db.
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create inserts a new product record.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// Update saves all fields of an existing product record.
func (r *ProductRepository) Update(ctx context.Context, p *domain.Product) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// GetByID retrieves a product by its ID.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByCode retrieves a product by its dedup key (manufacturer, product code).
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - manufacturerID: owning manufacturer ID.
//   - code: per-manufacturer product code.
// Returns:
//   - *domain.Product: product record if found.
//   - error: gorm.ErrRecordNotFound if no row matches.
func (r *ProductRepository) GetByCode(ctx context.Context, manufacturerID, code string) (*domain.Product, error) {
	var p domain.Product
	if err := r.db.WithContext(ctx).
		First(&p, "manufacturer_id = ? AND code = ?", manufacturerID, code).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListUnnormalized retrieves products with no normalization result yet,
// oldest first, limited to one batch.
func (r *ProductRepository) ListUnnormalized(ctx context.Context, scope Scope, limit int) ([]domain.Product, error) {
	var products []domain.Product
	q := scope.apply(r.db.WithContext(ctx)).
		Where("normalized_at IS NULL").
		Order("created_at ASC").
		Limit(limit)
	if err := q.Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// CountUnnormalized counts the remaining normalization backlog in scope.
func (r *ProductRepository) CountUnnormalized(ctx context.Context, scope Scope) (int64, error) {
	var count int64
	q := scope.apply(r.db.WithContext(ctx).Model(&domain.Product{})).
		Where("normalized_at IS NULL")
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListWithoutEmbedding retrieves products lacking an embedding vector.
func (r *ProductRepository) ListWithoutEmbedding(ctx context.Context, scope Scope, limit int) ([]domain.Product, error) {
	var products []domain.Product
	q := scope.apply(r.db.WithContext(ctx)).
		Where("embedding IS NULL").
		Order("created_at ASC").
		Limit(limit)
	if err := q.Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// UpdateColumns updates a subset of columns on a product by ID. Used by the
// batch components so each only writes its own fields.
func (r *ProductRepository) UpdateColumns(ctx context.Context, id string, values map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&domain.Product{}).
		Where("id = ?", id).
		Updates(values).Error
}
