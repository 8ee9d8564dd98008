package domain

import "time"

// FileCategory classifies a linked product document by its likely purpose.
type FileCategory string

const (
	FileCategoryDatasheet    FileCategory = "datasheet"
	FileCategoryCertificate  FileCategory = "certificate"
	FileCategoryInstallation FileCategory = "installation"
	FileCategoryBrochure     FileCategory = "brochure"
	FileCategoryOther        FileCategory = "other"
)

// ParsedContentEmpty marks a file whose PDF yielded no extractable text.
// Distinct from a nil ParsedContent (not yet processed) so the enrichment
// batch never retries it.
const ParsedContentEmpty = "(no extractable text)"

// ProductFile represents a document linked to a product (datasheet,
// certificate, manual). ParsedContent stays nil until the PDF pipeline runs;
// StoragePath stays empty until the raw bytes are archived.
type ProductFile struct {
	ID            string       `gorm:"type:text;primaryKey" json:"id"`
	ProductID     string       `gorm:"type:text;not null;index:idx_product_files_product" json:"product_id"`
	SourceURL     string       `gorm:"type:text;not null" json:"source_url"`
	ContentType   string       `gorm:"type:text" json:"content_type"`
	Category      FileCategory `gorm:"type:text" json:"category"`
	ParsedContent *string      `gorm:"type:text" json:"parsed_content,omitempty"`
	PageCount     int          `gorm:"default:0" json:"page_count"`
	StoragePath   string       `gorm:"type:text" json:"storage_path,omitempty"`
	AutoAttached  bool         `gorm:"default:true" json:"auto_attached"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// TableName returns the database table name for ProductFile.
func (ProductFile) TableName() string {
	return "product_files"
}
