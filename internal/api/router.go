package api

import (
	"github.com/gin-gonic/gin"

	"github.com/karsten/pillarcat/internal/api/handler"
	"github.com/karsten/pillarcat/internal/api/middleware"
	"github.com/karsten/pillarcat/internal/events"
	"github.com/karsten/pillarcat/internal/logger"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	bus events.Emitter,
	jobs handler.JobStore,
	log *logger.Logger,
	mode string,
) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{AllowAllOrigins: true}))

	healthHandler := handler.NewHealthHandler("pillarcat-worker")
	eventHandler := handler.NewEventHandler(bus, jobs)
	jobHandler := handler.NewJobHandler(jobs)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Pipeline event intake
		v1.POST("/events/:name", eventHandler.Enqueue)

		// Job progress polling
		v1.GET("/jobs/:id", jobHandler.Get)
	}

	return r
}
