package domain

import "time"

// ProductStatus represents the lifecycle status of a product record.
// Values include ProductStatusDraft and ProductStatusActive.
type ProductStatus string

const (
	ProductStatusDraft  ProductStatus = "draft"
	ProductStatusActive ProductStatus = "active"
)

// Product represents a catalog product scraped from a manufacturer site.
// The (manufacturer_id, code) pair is the sole dedup key: two upserts with
// the same pair must converge to one row.
type Product struct {
	ID             string        `gorm:"type:text;primaryKey" json:"id"`
	ManufacturerID string        `gorm:"type:text;not null;index:idx_products_mfr_code,unique" json:"manufacturer_id"`
	OrganizationID string        `gorm:"type:text;not null;index:idx_products_org" json:"organization_id"`
	Pillar         string        `gorm:"type:text;index:idx_products_pillar" json:"pillar"`
	Code           string        `gorm:"type:text;not null;index:idx_products_mfr_code,unique" json:"code"`
	Name           string        `gorm:"type:text;not null" json:"name"`
	Description    string        `gorm:"type:text" json:"description"`
	Specifications StringMap     `gorm:"type:text" json:"specifications"`
	RawPayload     JSONMap       `gorm:"type:text" json:"raw_payload"`
	NormalizedAt   *time.Time    `gorm:"index:idx_products_normalized" json:"normalized_at,omitempty"`
	Confidence     int           `gorm:"default:0" json:"confidence"`
	Warnings       StringArray   `gorm:"type:text" json:"warnings"`
	NeedsReview    bool          `gorm:"default:false" json:"needs_review"`
	Embedding      Vector        `gorm:"type:text" json:"embedding,omitempty"`
	Status         ProductStatus `gorm:"type:text;index:idx_products_status;default:draft" json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string {
	return "products"
}

// RawText concatenates the textual fields used as normalization input.
func (p *Product) RawText() string {
	text := p.Name
	if p.Description != "" {
		text += "\n" + p.Description
	}
	if raw, ok := p.RawPayload["raw_text"].(string); ok && raw != "" {
		text += "\n" + raw
	}
	return text
}
