package checks

import (
	"context"
	"time"

	"github.com/charlesng35/arenahub/internal/monitoring"
)

const defaultStorageTimeout = 3 * time.Second

// Pinger is satisfied by blob stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Storage returns a readiness probe for the avatar blob store. Failures only
// degrade readiness because avatars are not on the critical path.
func Storage(store Pinger, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("storage", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if store == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "storage not configured",
				Duration: time.Since(start),
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultStorageTimeout))
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
