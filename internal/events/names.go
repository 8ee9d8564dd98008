package events

import (
	"encoding/json"

	"github.com/karsten/pillarcat/internal/domain"
)

// Pipeline event names. Components hand work to each other exclusively
// through these; there are no direct cross-component calls.
const (
	ScrapeRequested     = "scrape.requested"
	ScrapeAIRequested   = "scrape_ai.requested"
	NormalizeRequested  = "normalize.requested"
	PDFParseRequested   = "pdf_parse.requested"
	EmbeddingsRequested = "embeddings.requested"
)

// Payload is the common payload carried by every pipeline event. Scope
// fields are optional; an empty scope means organization-wide processing.
type Payload struct {
	ManufacturerID string `json:"manufacturer_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	JobID          string `json:"job_id,omitempty"`
}

// ToMap converts the payload into the queue's storage representation.
func (p Payload) ToMap() domain.JSONMap {
	m := domain.JSONMap{}
	if p.ManufacturerID != "" {
		m["manufacturer_id"] = p.ManufacturerID
	}
	if p.OrganizationID != "" {
		m["organization_id"] = p.OrganizationID
	}
	if p.JobID != "" {
		m["job_id"] = p.JobID
	}
	return m
}

// PayloadFromMap decodes a stored payload map.
func PayloadFromMap(m domain.JSONMap) (Payload, error) {
	var p Payload
	raw, err := json.Marshal(m)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	return p, nil
}
