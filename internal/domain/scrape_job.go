package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the status of a scrape job.
// Values include JobStatusQueued, JobStatusRunning, JobStatusCompleted, and
// JobStatusFailed. Completed and failed are terminal: the pipeline never
// re-enters them.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobProgress holds the human-readable progress of a running scrape job.
// It is polled by an external UI through the job record.
type JobProgress struct {
	Stage   string         `json:"stage"`
	Method  string         `json:"method,omitempty"`
	Current int            `json:"current"`
	Total   int            `json:"total"`
	Found   int            `json:"found"`
	Stats   map[string]int `json:"stats,omitempty"`
}

// Value implements the driver.Valuer interface for database serialization.
func (p JobProgress) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface for database deserialization.
func (p *JobProgress) Scan(value interface{}) error {
	if value == nil {
		*p = JobProgress{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JobProgress")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, p)
}

// ScrapeJob represents one manufacturer scrape run and its progress metadata.
type ScrapeJob struct {
	ID             string      `gorm:"type:text;primaryKey" json:"id"`
	ManufacturerID string      `gorm:"type:text;not null;index" json:"manufacturer_id"`
	OrganizationID string      `gorm:"type:text;index" json:"organization_id"`
	Status         JobStatus   `gorm:"type:text;default:queued" json:"status"`
	Progress       JobProgress `gorm:"type:text" json:"progress"`
	Created        int         `gorm:"default:0" json:"created"`
	Updated        int         `gorm:"default:0" json:"updated"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	ErrorLog       string      `gorm:"type:text" json:"error_log,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// TableName returns the database table name for ScrapeJob.
func (ScrapeJob) TableName() string {
	return "scrape_jobs"
}
