package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/workmate/workmate/internal/config"
	"github.com/workmate/workmate/internal/db"
)

// NewRouter builds the gin engine with the standard middleware chain.
func NewRouter(cfg *config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	r.Use(SecurityHeaders())
	return r
}

// SetupRoutes configures all application routes.
func SetupRoutes(r *gin.Engine, h *Handlers, cfg *config.Config, database *db.DB) {
	// Health endpoints (no auth, no rate limit)
	r.GET("/healthz", h.Liveness)
	r.GET("/ready", h.Readiness)

	// API routes with rate limiting and proxy-resolved identity
	apiRateLimiter := RateLimiter(cfg.RateLimiting.RPS, cfg.RateLimiting.Burst)
	api := r.Group("/api")
	api.Use(apiRateLimiter)
	api.Use(RequireUser(database))
	api.Use(RequireJSONContentType())
	{
		api.GET("/events", h.APIListEvents)
		api.POST("/events", h.APICreateEvent)
		api.GET("/events/:id", h.APIGetEvent)
		api.PATCH("/events/:id", h.APIUpdateEvent)
		api.DELETE("/events/:id", h.APIDeleteEvent)
		api.POST("/events/:id/resolve-conflict", h.APIResolveConflict)

		api.GET("/integrations", h.APIListIntegrations)
		api.POST("/integrations", h.APICreateIntegration)
		api.GET("/integrations/:id", h.APIGetIntegration)
		api.PATCH("/integrations/:id", h.APIUpdateIntegration)
		api.DELETE("/integrations/:id", h.APIDeleteIntegration)
		api.GET("/integrations/:id/logs", h.APIGetSyncLogs)

		api.GET("/tasks", h.APIListTasks)
		api.POST("/tasks", h.APICreateTask)
		api.GET("/tasks/:id", h.APIGetTask)
		api.PATCH("/tasks/:id", h.APIUpdateTask)
		api.DELETE("/tasks/:id", h.APIDeleteTask)
		api.POST("/tasks/sync-all", h.APIBulkSyncTasks)
		api.POST("/tasks/cleanup-completed", h.APICleanupCompletedTasks)
	}

	// Network-touching operations with stricter rate limiting
	expensiveRateLimiter := RateLimiter(2, 5)
	expensive := r.Group("/api")
	expensive.Use(expensiveRateLimiter)
	expensive.Use(RequireUser(database))
	expensive.Use(RequireJSONContentType())
	{
		expensive.POST("/integrations/:id/test", h.APITestIntegration)
		expensive.POST("/integrations/:id/sync", h.APITriggerSync)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
}
