package checks

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/civicalert/civicalert/internal/database"
	"github.com/civicalert/civicalert/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

// Database returns a probe that pings the configured database handle.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultDatabaseTimeout))
		defer cancel()

		if err := database.Ping(probeCtx, db); err != nil {
			// Without the database nothing can be served, even on timeout.
			result := monitoring.ResultFromError("database", err, time.Since(start))
			result.Status = monitoring.StatusDown
			return result
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Duration: time.Since(start)}
	})
}

func chooseTimeout(provided, fallback time.Duration) time.Duration {
	if provided <= 0 {
		return fallback
	}
	return provided
}
