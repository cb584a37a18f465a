package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"travel-inquiry-agent/internal/dedup"
	"travel-inquiry-agent/internal/scheduler"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db        *gorm.DB
	cache     dedup.Cache
	scheduler *scheduler.Scheduler
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, cache dedup.Cache, sched *scheduler.Scheduler) *Handlers {
	return &Handlers{
		db:        db,
		cache:     cache,
		scheduler: sched,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	// Health check
	router.GET("/healthz", h.HealthCheck)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	{
		// Conversation threads
		api.GET("/threads", h.GetThreads)
		api.GET("/threads/:key", h.GetThread)

		// Extracted inquiries
		api.GET("/inquiries", h.GetInquiries)
		api.GET("/inquiries/:id", h.GetInquiry)

		// Quote documents
		api.GET("/quotes", h.GetQuotes)
		api.GET("/quotes/:handle", h.GetQuote)

		// Scheduler control
		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}
