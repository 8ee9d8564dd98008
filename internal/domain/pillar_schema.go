package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// FieldType enumerates the value types a schema field can declare.
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeNumber FieldType = "number"
	FieldTypeEnum   FieldType = "enum"
	FieldTypeBool   FieldType = "bool"
)

// FieldDef describes one structured field of a pillar schema.
type FieldDef struct {
	Name          string    `json:"name"`
	Type          FieldType `json:"type"`
	Label         string    `json:"label"`
	Example       string    `json:"example,omitempty"`
	AllowedValues []string  `json:"allowed_values,omitempty"`
}

// FieldDefs stores a field definition list as JSON in the database.
type FieldDefs []FieldDef

// Value implements the driver.Valuer interface for database serialization.
func (f FieldDefs) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	return json.Marshal(f)
}

// Scan implements the sql.Scanner interface for database deserialization.
func (f *FieldDefs) Scan(value interface{}) error {
	if value == nil {
		*f = FieldDefs{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan FieldDefs")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, f)
}

// PillarSchema defines the structured field schema for one product category
// (pillar). Schemas are closed but tolerant: normalization flags unknown
// fields as warnings instead of rejecting them.
type PillarSchema struct {
	ID          string      `gorm:"type:text;primaryKey" json:"id"`
	Pillar      string      `gorm:"type:text;not null;uniqueIndex:idx_pillar_schemas_pillar" json:"pillar"`
	DisplayName string      `gorm:"type:text" json:"display_name"`
	Fields      FieldDefs   `gorm:"type:text" json:"fields"`
	Required    StringArray `gorm:"type:text" json:"required"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TableName returns the database table name for PillarSchema.
func (PillarSchema) TableName() string {
	return "pillar_schemas"
}

// Field returns the definition for the named field, if present.
func (s *PillarSchema) Field(name string) (FieldDef, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}
