package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/karsten/pillarcat/internal/domain"
	"github.com/karsten/pillarcat/internal/logger"
	"gorm.io/gorm"
)

// Emitter enqueues a named pipeline event. Components emit events for
// cross-component hand-off and self-continuation; they never call each
// other directly.
type Emitter interface {
	Emit(ctx context.Context, name string, payload Payload) error
}

// Queue is the durable store backing the dispatcher. Implemented by
// repository.EventRepository; faked in tests.
type Queue interface {
	Enqueue(ctx context.Context, name string, payload domain.JSONMap) (*domain.Event, error)
	ClaimNext(ctx context.Context, name string) (*domain.Event, error)
	MarkDone(ctx context.Context, id string) error
	Requeue(ctx context.Context, id string, handlerErr string) error
	MarkFailed(ctx context.Context, id string, handlerErr string) error
}

// Handler processes one delivered event. A non-nil error returns the event
// to the queue for redelivery, so handlers must be idempotent.
type Handler func(ctx context.Context, payload Payload) error

type registration struct {
	handler Handler
	limit   int
}

// Dispatcher polls the durable queue and delivers events to registered
// handlers with a per-event-type concurrency ceiling. Delivery is at least
// once: a crashed or failed handler leaves the event pending.
type Dispatcher struct {
	queue        Queue
	log          *logger.Logger
	pollInterval time.Duration
	maxAttempts  int

	mu       sync.Mutex
	handlers map[string]registration
}

// NewDispatcher creates a Dispatcher over the given queue.
func NewDispatcher(queue Queue, log *logger.Logger, pollInterval time.Duration, maxAttempts int) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Dispatcher{
		queue:        queue,
		log:          log,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		handlers:     make(map[string]registration),
	}
}

// Register binds a handler to an event name with a concurrency ceiling.
// The ceiling is deliberately low (1-2) so batch components do not overwhelm
// the catalog store or the extraction provider.
func (d *Dispatcher) Register(name string, limit int, handler Handler) {
	if limit <= 0 {
		limit = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = registration{handler: handler, limit: limit}
}

// Emit enqueues a new event for later delivery.
func (d *Dispatcher) Emit(ctx context.Context, name string, payload Payload) error {
	_, err := d.queue.Enqueue(ctx, name, payload.ToMap())
	if err == nil {
		d.log.WithFields(logger.Fields{
			logger.FieldEvent:          name,
			logger.FieldManufacturerID: payload.ManufacturerID,
		}).Debug("Event enqueued")
	}
	return err
}

// Run starts the delivery workers and blocks until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	d.mu.Lock()
	for name, reg := range d.handlers {
		for i := 0; i < reg.limit; i++ {
			wg.Add(1)
			go func(name string, handler Handler) {
				defer wg.Done()
				d.worker(ctx, name, handler)
			}(name, reg.handler)
		}
	}
	d.mu.Unlock()
	wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, name string, handler Handler) {
	for {
		if ctx.Err() != nil {
			return
		}

		ev, err := d.queue.ClaimNext(ctx, name)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				d.log.WithField(logger.FieldEvent, name).WithError(err).Error("Failed to claim event")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.pollInterval):
			}
			continue
		}

		d.deliver(ctx, ev, handler)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev *domain.Event, handler Handler) {
	log := d.log.WithFields(logger.Fields{
		logger.FieldEvent: ev.Name,
		"event_id":        ev.ID,
		"attempt":         ev.Attempts,
	})

	payload, err := PayloadFromMap(ev.Payload)
	if err != nil {
		log.WithError(err).Error("Undecodable event payload, parking event")
		if err := d.queue.MarkFailed(ctx, ev.ID, "bad payload: "+err.Error()); err != nil {
			log.WithError(err).Error("Failed to park event")
		}
		return
	}

	if err := handler(logger.SetEvent(ctx, ev.Name), payload); err != nil {
		log.WithError(err).Warn("Event handler failed")
		if ev.Attempts >= d.maxAttempts {
			if err := d.queue.MarkFailed(ctx, ev.ID, err.Error()); err != nil {
				log.WithError(err).Error("Failed to park event")
			}
			return
		}
		if err := d.queue.Requeue(ctx, ev.ID, err.Error()); err != nil {
			log.WithError(err).Error("Failed to requeue event")
		}
		return
	}

	if err := d.queue.MarkDone(ctx, ev.ID); err != nil {
		log.WithError(err).Error("Failed to mark event done")
	}
}
