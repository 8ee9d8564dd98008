package main

import (
	"context"
	"flag"

	"github.com/google/uuid"

	"github.com/karsten/pillarcat/internal/config"
	"github.com/karsten/pillarcat/internal/domain"
	"github.com/karsten/pillarcat/internal/events"
	"github.com/karsten/pillarcat/internal/logger"
	"github.com/karsten/pillarcat/internal/repository"
)

// Enqueues a scrape for one manufacturer and exits. The worker process
// picks the event up from the durable queue.
func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "pillarcat-scrape",
	})
	logger.SetDefaultLogger(appLogger)

	manufacturerID := flag.String("manufacturer", "", "Manufacturer ID to scrape")
	useAI := flag.Bool("ai", false, "Force AI-guided discovery")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *manufacturerID == "" {
		appLogger.Fatal("-manufacturer is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	manufacturerRepo := repository.NewManufacturerRepository(db)
	jobRepo := repository.NewJobRepository(db)
	eventRepo := repository.NewEventRepository(db)

	ctx := context.Background()

	mfr, err := manufacturerRepo.GetByID(ctx, *manufacturerID)
	if err != nil {
		appLogger.WithError(err).Fatal("Manufacturer not found")
	}

	job := &domain.ScrapeJob{
		ID:             uuid.New().String(),
		ManufacturerID: mfr.ID,
		OrganizationID: mfr.OrganizationID,
		Status:         domain.JobStatusQueued,
	}
	if err := jobRepo.Create(ctx, job); err != nil {
		appLogger.WithError(err).Fatal("Failed to create scrape job")
	}

	eventName := events.ScrapeRequested
	if *useAI {
		eventName = events.ScrapeAIRequested
	}

	payload := events.Payload{
		ManufacturerID: mfr.ID,
		OrganizationID: mfr.OrganizationID,
		JobID:          job.ID,
	}
	if _, err := eventRepo.Enqueue(ctx, eventName, payload.ToMap()); err != nil {
		appLogger.WithError(err).Fatal("Failed to enqueue scrape event")
	}

	appLogger.WithFields(logger.Fields{
		logger.FieldJobID:          job.ID,
		logger.FieldManufacturerID: mfr.ID,
		logger.FieldEvent:          eventName,
	}).Info("Scrape queued")
}
