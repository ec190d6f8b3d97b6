package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/sissync/internal/api/handler"
	"github.com/timmy/sissync/internal/api/middleware"
	"github.com/timmy/sissync/internal/config"
)

// Dependencies holds what the router serves.
type Dependencies struct {
	DB        handler.Pinger
	Sync      handler.SyncController
	Schedules handler.ScheduleManager
	Trigger   handler.NextRunLookup
	// Metrics is served on cfg.Metrics.Path when non-nil.
	Metrics prometheus.Gatherer
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORS(cfg.Server.CORS))

	healthHandler := handler.NewHealthHandler(deps.DB)
	syncHandler := handler.NewSyncHandler(deps.Sync)
	scheduleHandler := handler.NewScheduleHandler(deps.Schedules, deps.Trigger)

	r.GET("/health", healthHandler.Health)
	if deps.Metrics != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1/sync")
	{
		runs := v1.Group("/runs")
		runs.POST("", syncHandler.TriggerRun)
		runs.GET("", syncHandler.ListRuns)
		runs.GET("/:id", syncHandler.GetRun)
		runs.GET("/:id/schools", syncHandler.ListRunSchools)
		runs.POST("/:id/cancel", syncHandler.CancelRun)

		schedules := v1.Group("/schedules")
		schedules.GET("", scheduleHandler.List)
		schedules.POST("", scheduleHandler.Create)
		schedules.PUT("/:id", scheduleHandler.Update)
		schedules.DELETE("/:id", scheduleHandler.Delete)
	}

	return r
}
