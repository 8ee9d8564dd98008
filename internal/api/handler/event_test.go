package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/karsten/pillarcat/internal/domain"
	"github.com/karsten/pillarcat/internal/events"
)

type fakeBus struct {
	mu     sync.Mutex
	events []string
}

func (b *fakeBus) Emit(_ context.Context, name string, _ events.Payload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, name)
	return nil
}

type fakeJobs struct {
	mu   sync.Mutex
	byID map[string]*domain.ScrapeJob
}

func (s *fakeJobs) Create(_ context.Context, job *domain.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[job.ID] = job
	return nil
}

func (s *fakeJobs) GetByID(_ context.Context, id string) (*domain.ScrapeJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return job, nil
}

func newTestRouter(bus *fakeBus, jobs *fakeJobs) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	eventHandler := NewEventHandler(bus, jobs)
	jobHandler := NewJobHandler(jobs)
	r.POST("/api/v1/events/:name", eventHandler.Enqueue)
	r.GET("/api/v1/jobs/:id", jobHandler.Get)
	return r
}

func TestEnqueueScrapeCreatesJob(t *testing.T) {
	bus := &fakeBus{}
	jobs := &fakeJobs{byID: map[string]*domain.ScrapeJob{}}
	router := newTestRouter(bus, jobs)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/scrape.requested",
		strings.NewReader(`{"manufacturer_id": "mfr-1", "organization_id": "org-1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["job_id"])
	assert.Equal(t, []string{events.ScrapeRequested}, bus.events)

	job, err := jobs.GetByID(context.Background(), resp["job_id"])
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, "mfr-1", job.ManufacturerID)
}

func TestEnqueueScrapeRequiresManufacturer(t *testing.T) {
	bus := &fakeBus{}
	jobs := &fakeJobs{byID: map[string]*domain.ScrapeJob{}}
	router := newTestRouter(bus, jobs)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/scrape.requested", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, bus.events)
}

func TestEnqueueRejectsUnknownEvent(t *testing.T) {
	bus := &fakeBus{}
	jobs := &fakeJobs{byID: map[string]*domain.ScrapeJob{}}
	router := newTestRouter(bus, jobs)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/made.up", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnqueueBatchEventWithoutJob(t *testing.T) {
	bus := &fakeBus{}
	jobs := &fakeJobs{byID: map[string]*domain.ScrapeJob{}}
	router := newTestRouter(bus, jobs)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/normalize.requested",
		strings.NewReader(`{"manufacturer_id": "mfr-1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp["job_id"])
	assert.Empty(t, jobs.byID)
}

func TestGetJobNotFound(t *testing.T) {
	router := newTestRouter(&fakeBus{}, &fakeJobs{byID: map[string]*domain.ScrapeJob{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/missing", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
