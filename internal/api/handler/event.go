package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/karsten/pillarcat/internal/domain"
	"github.com/karsten/pillarcat/internal/events"
	"github.com/karsten/pillarcat/internal/logger"
)

// JobStore is the slice of the job repository the API needs.
type JobStore interface {
	Create(ctx context.Context, job *domain.ScrapeJob) error
	GetByID(ctx context.Context, id string) (*domain.ScrapeJob, error)
}

var knownEvents = map[string]bool{
	events.ScrapeRequested:     true,
	events.ScrapeAIRequested:   true,
	events.NormalizeRequested:  true,
	events.PDFParseRequested:   true,
	events.EmbeddingsRequested: true,
}

// scrapeEvents require a manufacturer and get a trackable job record.
var scrapeEvents = map[string]bool{
	events.ScrapeRequested:   true,
	events.ScrapeAIRequested: true,
}

// EventHandler accepts pipeline events over HTTP and enqueues them on the
// durable queue.
type EventHandler struct {
	bus  events.Emitter
	jobs JobStore
}

// NewEventHandler creates a new event handler.
// Parameters:
//   - bus: durable event emitter.
//   - jobs: job store used to create trackable scrape jobs.
//
// Returns:
//   - *EventHandler: initialized handler.
func NewEventHandler(bus events.Emitter, jobs JobStore) *EventHandler {
	return &EventHandler{bus: bus, jobs: jobs}
}

type enqueueRequest struct {
	ManufacturerID string `json:"manufacturer_id"`
	OrganizationID string `json:"organization_id"`
}

// Enqueue handles POST /api/v1/events/:name.
func (h *EventHandler) Enqueue(c *gin.Context) {
	name := c.Param("name")
	if !knownEvents[name] {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown event name: " + name})
		return
	}

	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	payload := events.Payload{
		ManufacturerID: req.ManufacturerID,
		OrganizationID: req.OrganizationID,
	}

	if scrapeEvents[name] {
		if req.ManufacturerID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "manufacturer_id is required for scrape events"})
			return
		}
		job := &domain.ScrapeJob{
			ID:             uuid.New().String(),
			ManufacturerID: req.ManufacturerID,
			OrganizationID: req.OrganizationID,
			Status:         domain.JobStatusQueued,
		}
		if err := h.jobs.Create(ctx, job); err != nil {
			logger.FromContext(ctx).WithError(err).Error("Failed to create scrape job")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
			return
		}
		payload.JobID = job.ID
	}

	if err := h.bus.Emit(ctx, name, payload); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to enqueue event")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue event"})
		return
	}

	resp := gin.H{"event": name, "status": "queued"}
	if payload.JobID != "" {
		resp["job_id"] = payload.JobID
	}
	c.JSON(http.StatusAccepted, resp)
}
