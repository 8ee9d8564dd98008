package repository

import (
	"context"

	"github.com/karsten/pillarcat/internal/domain"
	"gorm.io/gorm"
)

// ProductFileRepository handles linked product document records.
type ProductFileRepository struct {
	db *gorm.DB
}

// NewProductFileRepository creates a new ProductFileRepository.
func NewProductFileRepository(db *gorm.DB) *ProductFileRepository {
	return &ProductFileRepository{db: db}
}

// Create inserts a new file record.
func (r *ProductFileRepository) Create(ctx context.Context, f *domain.ProductFile) error {
	return r.db.WithContext(ctx).Create(f).Error
}

// Update saves all fields of an existing file record.
func (r *ProductFileRepository) Update(ctx context.Context, f *domain.ProductFile) error {
	return r.db.WithContext(ctx).Save(f).Error
}

// DeleteAutoAttached removes the auto-attached files of a product so a
// re-scrape can replace them. Files uploaded by a human are preserved.
func (r *ProductFileRepository) DeleteAutoAttached(ctx context.Context, productID string) error {
	return r.db.WithContext(ctx).
		Where("product_id = ? AND auto_attached = ?", productID, true).
		Delete(&domain.ProductFile{}).Error
}

// ListUnparsedPDFs retrieves PDF file records that have a source URL and no
// parsed content yet, optionally scoped to one manufacturer's products.
func (r *ProductFileRepository) ListUnparsedPDFs(ctx context.Context, scope Scope, limit int) ([]domain.ProductFile, error) {
	var files []domain.ProductFile
	q := r.db.WithContext(ctx).
		Where("source_url <> '' AND content_type = ? AND parsed_content IS NULL", "application/pdf").
		Order("created_at ASC").
		Limit(limit)
	q = r.applyProductScope(q, scope)
	if err := q.Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// CountUnparsedPDFs counts the remaining PDF backlog in scope.
func (r *ProductFileRepository) CountUnparsedPDFs(ctx context.Context, scope Scope) (int64, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&domain.ProductFile{}).
		Where("source_url <> '' AND content_type = ? AND parsed_content IS NULL", "application/pdf")
	q = r.applyProductScope(q, scope)
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ProductFileRepository) applyProductScope(q *gorm.DB, scope Scope) *gorm.DB {
	if scope.ManufacturerID != "" {
		q = q.Where("product_id IN (?)",
			r.db.Model(&domain.Product{}).Select("id").Where("manufacturer_id = ?", scope.ManufacturerID))
	}
	if scope.OrganizationID != "" {
		q = q.Where("product_id IN (?)",
			r.db.Model(&domain.Product{}).Select("id").Where("organization_id = ?", scope.OrganizationID))
	}
	return q
}
