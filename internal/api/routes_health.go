package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/civicalert/civicalert/internal/app"
	"github.com/civicalert/civicalert/internal/cache"
	"github.com/civicalert/civicalert/internal/dispatch"
	"github.com/civicalert/civicalert/internal/handlers"
	"github.com/civicalert/civicalert/internal/monitoring"
	"github.com/civicalert/civicalert/internal/monitoring/checks"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, db *gorm.DB, store cache.Pinger, hub *dispatch.Hub) {
	if !cfg.Monitoring.Health.Enabled {
		r.GET("/health", disabledHealthHandler)
		return
	}

	manager := monitoring.NewHealthManager(
		checks.Database(db, 0),
		checks.QuotaStore(store, 0),
	)
	if hub != nil {
		manager.Register(checks.Dispatch(hub))
	}

	r.GET("/health", handlers.Health(manager))
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": monitoring.StatusUp})
	})
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "disabled"})
}
