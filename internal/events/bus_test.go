package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/karsten/pillarcat/internal/domain"
	"github.com/karsten/pillarcat/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// memQueue is an in-memory Queue used to exercise the dispatcher without a
// database.
type memQueue struct {
	mu     sync.Mutex
	events map[string]*domain.Event
	order  []string
}

func newMemQueue() *memQueue {
	return &memQueue{events: make(map[string]*domain.Event)}
}

func (q *memQueue) Enqueue(_ context.Context, name string, payload domain.JSONMap) (*domain.Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ev := &domain.Event{
		ID:      uuid.New().String(),
		Name:    name,
		Payload: payload,
		Status:  domain.EventStatusPending,
	}
	q.events[ev.ID] = ev
	q.order = append(q.order, ev.ID)
	return ev, nil
}

func (q *memQueue) ClaimNext(_ context.Context, name string) (*domain.Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.order {
		ev := q.events[id]
		if ev.Name == name && ev.Status == domain.EventStatusPending {
			ev.Status = domain.EventStatusRunning
			ev.Attempts++
			copied := *ev
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (q *memQueue) MarkDone(_ context.Context, id string) error {
	return q.setStatus(id, domain.EventStatusDone, "")
}

func (q *memQueue) Requeue(_ context.Context, id string, handlerErr string) error {
	return q.setStatus(id, domain.EventStatusPending, handlerErr)
}

func (q *memQueue) MarkFailed(_ context.Context, id string, handlerErr string) error {
	return q.setStatus(id, domain.EventStatusFailed, handlerErr)
}

func (q *memQueue) setStatus(id string, status domain.EventStatus, lastErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	ev, ok := q.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	ev.Status = status
	if lastErr != "" {
		ev.LastError = lastErr
	}
	return nil
}

func (q *memQueue) status(id string) domain.EventStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.events[id].Status
}

func (q *memQueue) attempts(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.events[id].Attempts
}

func testDispatcher(q Queue) *Dispatcher {
	return NewDispatcher(q, logger.New(nil), 5*time.Millisecond, 3)
}

func TestDispatcherDeliversEvent(t *testing.T) {
	q := newMemQueue()
	d := testDispatcher(q)

	delivered := make(chan Payload, 1)
	d.Register(NormalizeRequested, 1, func(_ context.Context, p Payload) error {
		delivered <- p
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ev, err := q.Enqueue(ctx, NormalizeRequested, Payload{ManufacturerID: "mfr-1"}.ToMap())
	require.NoError(t, err)

	go d.Run(ctx)

	select {
	case p := <-delivered:
		assert.Equal(t, "mfr-1", p.ManufacturerID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}

	// Let the dispatcher finish bookkeeping before inspecting status.
	assert.Eventually(t, func() bool {
		return q.status(ev.ID) == domain.EventStatusDone
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcherRedeliversUntilAttemptCap(t *testing.T) {
	q := newMemQueue()
	d := testDispatcher(q)

	var mu sync.Mutex
	calls := 0
	d.Register(PDFParseRequested, 1, func(_ context.Context, _ Payload) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ev, err := q.Enqueue(ctx, PDFParseRequested, Payload{}.ToMap())
	require.NoError(t, err)

	go d.Run(ctx)

	assert.Eventually(t, func() bool {
		return q.status(ev.ID) == domain.EventStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, q.attempts(ev.ID))
}

func TestPayloadRoundTrip(t *testing.T) {
	p := Payload{ManufacturerID: "m", OrganizationID: "o", JobID: "j"}
	got, err := PayloadFromMap(p.ToMap())
	require.NoError(t, err)
	assert.Equal(t, p, got)
}
