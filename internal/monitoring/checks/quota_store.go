package checks

import (
	"context"
	"time"

	"github.com/civicalert/civicalert/internal/cache"
	"github.com/civicalert/civicalert/internal/monitoring"
)

const defaultStoreTimeout = time.Second

// QuotaStore returns a probe for the quota counter backend. The enforcer fails open, so an
// unreachable store only degrades the service.
func QuotaStore(store cache.Pinger, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("quota_store", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if store == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "quota store not configured"}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultStoreTimeout))
		defer cancel()

		if err := store.Ping(probeCtx); err != nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  err.Error(),
				Duration: time.Since(start),
			}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Duration: time.Since(start)}
	})
}
