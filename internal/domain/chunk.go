package domain

import "time"

// ChunkType classifies a knowledge-base chunk by its block structure.
type ChunkType string

const (
	ChunkTypeText             ChunkType = "text"
	ChunkTypeTable            ChunkType = "table"
	ChunkTypeImageDescription ChunkType = "image_description"
)

// Chunk is one retrieval-sized slice of an ingested document. Chunks are
// immutable after creation; re-ingesting the same document writes a new
// generation instead of mutating existing rows.
type Chunk struct {
	ID         string    `gorm:"type:text;primaryKey" json:"id"`
	DocumentID string    `gorm:"type:text;not null;index:idx_chunks_doc" json:"document_id"`
	Generation int       `gorm:"default:1;index:idx_chunks_doc" json:"generation"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	ChunkType  ChunkType `gorm:"type:text" json:"chunk_type"`
	Page       int       `json:"page"`
	ChunkIndex int       `gorm:"index:idx_chunks_index" json:"chunk_index"`
	Metadata   JSONMap   `gorm:"type:text" json:"metadata"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for Chunk.
func (Chunk) TableName() string {
	return "chunks"
}
