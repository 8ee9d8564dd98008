package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ScraperConfig holds the structured scraping configuration for a manufacturer.
// When absent (nil on the Manufacturer), discovery falls back to AI-guided
// navigation of the manufacturer site.
type ScraperConfig struct {
	ProductListURL string `json:"product_list_url"`
	LinkSelector   string `json:"link_selector,omitempty"`
	NameSelector   string `json:"name_selector,omitempty"`
	CodeSelector   string `json:"code_selector,omitempty"`
}

// ScraperConfigJSON stores an optional ScraperConfig as JSON in the database.
type ScraperConfigJSON struct {
	Config *ScraperConfig
}

// Value implements the driver.Valuer interface for database serialization.
func (c ScraperConfigJSON) Value() (driver.Value, error) {
	if c.Config == nil {
		return nil, nil
	}
	return json.Marshal(c.Config)
}

// Scan implements the sql.Scanner interface for database deserialization.
func (c *ScraperConfigJSON) Scan(value interface{}) error {
	if value == nil {
		c.Config = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan ScraperConfigJSON")
		}
		bytes = []byte(str)
	}
	cfg := &ScraperConfig{}
	if err := json.Unmarshal(bytes, cfg); err != nil {
		return err
	}
	c.Config = cfg
	return nil
}

// Manufacturer represents a product manufacturer whose site is scraped.
type Manufacturer struct {
	ID             string            `gorm:"type:text;primaryKey" json:"id"`
	OrganizationID string            `gorm:"type:text;not null;index:idx_manufacturers_org" json:"organization_id"`
	Name           string            `gorm:"type:text;not null" json:"name"`
	WebsiteURL     string            `gorm:"type:text" json:"website_url"`
	ScraperConfig  ScraperConfigJSON `gorm:"type:text" json:"scraper_config"`
	DefaultPillar  string            `gorm:"type:text" json:"default_pillar"`
	LastScrapedAt  *time.Time        `json:"last_scraped_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// TableName returns the database table name for Manufacturer.
func (Manufacturer) TableName() string {
	return "manufacturers"
}
