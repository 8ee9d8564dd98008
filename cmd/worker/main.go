package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/karsten/pillarcat/internal/api"
	"github.com/karsten/pillarcat/internal/chunker"
	"github.com/karsten/pillarcat/internal/config"
	"github.com/karsten/pillarcat/internal/events"
	"github.com/karsten/pillarcat/internal/extract"
	"github.com/karsten/pillarcat/internal/fetch"
	"github.com/karsten/pillarcat/internal/logger"
	"github.com/karsten/pillarcat/internal/repository"
	"github.com/karsten/pillarcat/internal/service"
	"github.com/karsten/pillarcat/internal/storage"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "pillarcat-worker",
	})
	logger.SetDefaultLogger(appLogger)

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	manufacturerRepo := repository.NewManufacturerRepository(db)
	productRepo := repository.NewProductRepository(db)
	fileRepo := repository.NewProductFileRepository(db)
	schemaRepo := repository.NewSchemaRepository(db)
	jobRepo := repository.NewJobRepository(db)
	eventRepo := repository.NewEventRepository(db)
	chunkRepo := repository.NewChunkRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The similarity index is optional; the row vector is the durable copy.
	var vectors service.VectorStore
	if cfg.Qdrant.Host != "" {
		qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
			Host:            cfg.Qdrant.Host,
			Port:            cfg.Qdrant.Port,
			Collection:      cfg.Qdrant.Collection,
			APIKey:          cfg.Qdrant.APIKey,
			UseTLS:          cfg.Qdrant.UseTLS,
			VectorDimension: cfg.Qdrant.Dimensions,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize Qdrant repository")
		}
		defer qdrantRepo.Close()

		if err := qdrantRepo.EnsureCollection(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure Qdrant collection")
		}
		vectors = qdrantRepo
	} else {
		appLogger.Warn("Qdrant host not configured, similarity index disabled")
	}

	// Archival storage is optional too; PDFs stay reachable via source URL.
	var objectStorage storage.ObjectStorage
	if cfg.Storage.AccessKey != "" {
		objectStorage, err = storage.NewStorage(&storage.S3Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}
	} else {
		appLogger.Warn("Storage credentials not configured, PDF archival disabled")
	}

	var fetcher fetch.Fetcher
	if cfg.Fetch.Endpoint != "" {
		fetcher = fetch.NewHeadlessClient(&fetch.HeadlessConfig{
			Endpoint:    cfg.Fetch.Endpoint,
			Concurrency: cfg.Fetch.Concurrency,
			PageTimeout: cfg.Fetch.PageTimeout,
		})
	} else {
		appLogger.Warn("Fetch endpoint not configured, using direct HTTP fetching")
		fetcher = fetch.NewDirectFetcher(cfg.Fetch.Concurrency, cfg.Fetch.PageTimeout)
	}

	extractor := extract.NewClient(&extract.Config{
		BaseURL: cfg.Extract.BaseURL,
		APIKey:  cfg.Extract.APIKey,
		Model:   cfg.Extract.Model,
		Timeout: cfg.Extract.Timeout,
	})

	embedder := service.NewJinaClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)

	dispatcher := events.NewDispatcher(eventRepo, appLogger, cfg.Pipeline.PollInterval, cfg.Pipeline.MaxEventAttempts)

	discovery := service.NewDiscoveryService(fetcher, extractor)
	upserter := service.NewUpserter(productRepo, fileRepo)
	scrapeService := service.NewScrapeService(manufacturerRepo, jobRepo, discovery, fetcher, extractor, upserter, dispatcher, service.ScrapeOptions{
		FetchBatchSize:   cfg.Fetch.BatchSize,
		ExtractBatchSize: cfg.Extract.BatchSize,
		CallDelay:        cfg.Extract.CallDelay,
	})
	normalizeService := service.NewNormalizeService(productRepo, schemaRepo, extractor, dispatcher, cfg.Pipeline.NormalizeBatchSize, cfg.Extract.CallDelay)
	pdfService := service.NewPDFEnrichService(fileRepo, productRepo, chunkRepo, objectStorage,
		service.NewRestyDownloader(cfg.Pipeline.DownloadTimeout), dispatcher, service.PDFEnrichOptions{
			BatchSize: cfg.Pipeline.PDFBatchSize,
			ChunkOptions: chunker.Options{
				MinTokens: cfg.Chunker.MinTokens,
				MaxTokens: cfg.Chunker.MaxTokens,
			},
		})
	embedService := service.NewEmbedService(productRepo, vectors, embedder, cfg.Pipeline.EmbedBatchSize)

	// Low ceilings keep the catalog store and the extraction provider sane.
	dispatcher.Register(events.ScrapeRequested, 1, scrapeService.HandleScrape)
	dispatcher.Register(events.ScrapeAIRequested, 1, scrapeService.HandleScrapeAI)
	dispatcher.Register(events.NormalizeRequested, 2, normalizeService.HandleNormalize)
	dispatcher.Register(events.PDFParseRequested, 2, pdfService.HandlePDFParse)
	dispatcher.Register(events.EmbeddingsRequested, 1, embedService.HandleEmbeddings)

	go dispatcher.Run(ctx)

	router := api.SetupRouter(dispatcher, jobRepo, appLogger, cfg.Server.Mode)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithField("port", cfg.Server.Port).Info("Starting worker API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Worker exited")
}
