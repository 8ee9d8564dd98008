package domain

import "time"

// EventStatus represents the delivery state of a queued pipeline event.
type EventStatus string

const (
	EventStatusPending EventStatus = "pending"
	EventStatusRunning EventStatus = "running"
	EventStatusDone    EventStatus = "done"
	EventStatusFailed  EventStatus = "failed"
)

// Event is one durable pipeline event. Events are delivered at least once:
// a handler error returns the event to pending until the attempt cap is hit.
type Event struct {
	ID        string      `gorm:"type:text;primaryKey" json:"id"`
	Name      string      `gorm:"type:text;not null;index:idx_events_name" json:"name"`
	Payload   JSONMap     `gorm:"type:text" json:"payload"`
	Status    EventStatus `gorm:"type:text;index:idx_events_status;default:pending" json:"status"`
	Attempts  int         `gorm:"default:0" json:"attempts"`
	LastError string      `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName returns the database table name for Event.
func (Event) TableName() string {
	return "events"
}
