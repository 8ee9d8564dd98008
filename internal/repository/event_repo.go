package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/karsten/pillarcat/internal/domain"
	"gorm.io/gorm"
)

// EventRepository persists the durable event queue backing the dispatcher.
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Enqueue inserts a new pending event.
func (r *EventRepository) Enqueue(ctx context.Context, name string, payload domain.JSONMap) (*domain.Event, error) {
	ev := &domain.Event{
		ID:      uuid.New().String(),
		Name:    name,
		Payload: payload,
		Status:  domain.EventStatusPending,
	}
	if err := r.db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

// ClaimNext atomically claims the oldest pending event of the given name,
// moving it to running. Returns gorm.ErrRecordNotFound when the queue is empty.
func (r *EventRepository) ClaimNext(ctx context.Context, name string) (*domain.Event, error) {
	var ev domain.Event
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("name = ? AND status = ?", name, domain.EventStatusPending).
			Order("created_at ASC").
			First(&ev).Error; err != nil {
			return err
		}
		res := tx.Model(&domain.Event{}).
			Where("id = ? AND status = ?", ev.ID, domain.EventStatusPending).
			Updates(map[string]interface{}{
				"status":   domain.EventStatusRunning,
				"attempts": gorm.Expr("attempts + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		// Another worker won the race for this event.
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ev.Status = domain.EventStatusRunning
	ev.Attempts++
	return &ev, nil
}

// MarkDone records successful delivery.
func (r *EventRepository) MarkDone(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.Event{}).
		Where("id = ?", id).
		Update("status", domain.EventStatusDone).Error
}

// Requeue returns a running event to pending after a handler error so it is
// delivered again (at-least-once).
func (r *EventRepository) Requeue(ctx context.Context, id string, handlerErr string) error {
	return r.db.WithContext(ctx).Model(&domain.Event{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.EventStatusPending,
			"last_error": handlerErr,
			"updated_at": time.Now(),
		}).Error
}

// MarkFailed parks an event permanently after the attempt cap is hit.
func (r *EventRepository) MarkFailed(ctx context.Context, id string, handlerErr string) error {
	return r.db.WithContext(ctx).Model(&domain.Event{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.EventStatusFailed,
			"last_error": handlerErr,
		}).Error
}
