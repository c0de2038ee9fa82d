package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/civicalert/civicalert/internal/monitoring"
	"github.com/civicalert/civicalert/pkg/logger"
)

// Health reports the readiness probes. A down component returns 503; a degraded one still
// serves.
func Health(manager *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := manager.Evaluate(requestContext(c))

		code := http.StatusOK
		if !report.Serving() {
			code = http.StatusServiceUnavailable
		}
		if report.Status != monitoring.StatusUp {
			for _, check := range report.Checks {
				if check.Status != monitoring.StatusUp {
					logger.WithModule("health").Warn("probe failed",
						zap.String("component", check.Component),
						zap.String("status", string(check.Status)),
						zap.String("details", check.Details))
				}
			}
		}

		c.JSON(code, report)
	}
}
