package checks

import (
	"context"
	"fmt"

	"github.com/civicalert/civicalert/internal/monitoring"
)

// SubscriberCounter reports connected stream subscribers.
type SubscriberCounter interface {
	Total() int
}

// Dispatch reports the number of connected dispatch stream subscribers. It never fails.
func Dispatch(hub SubscriberCounter) monitoring.Check {
	return monitoring.NewCheck("dispatch", func(context.Context) monitoring.ProbeResult {
		if hub == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "dispatch disabled"}
		}
		return monitoring.ProbeResult{
			Status:  monitoring.StatusUp,
			Details: fmt.Sprintf("%d subscribers", hub.Total()),
		}
	})
}
