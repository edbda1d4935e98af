package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/workmate/workmate/internal/config"
	"github.com/workmate/workmate/internal/db"
	"github.com/workmate/workmate/internal/scheduler"
	calsync "github.com/workmate/workmate/internal/sync"
	"github.com/workmate/workmate/internal/taskevent"
	"github.com/workmate/workmate/internal/validator"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	cfg       *config.Config
	db        *db.DB
	engine    *calsync.Engine
	mapper    *taskevent.Mapper
	scheduler *scheduler.Scheduler
	validator *validator.Validator
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	cfg *config.Config,
	database *db.DB,
	engine *calsync.Engine,
	mapper *taskevent.Mapper,
	sched *scheduler.Scheduler,
	urlValidator *validator.Validator,
) *Handlers {
	return &Handlers{
		cfg:       cfg,
		db:        database,
		engine:    engine,
		mapper:    mapper,
		scheduler: sched,
		validator: urlValidator,
	}
}

// Liveness returns a simple liveness check.
func (h *Handlers) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness checks that the database is reachable.
func (h *Handlers) Readiness(c *gin.Context) {
	if err := h.db.Conn().PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "database unreachable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
