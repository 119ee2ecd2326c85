package checks

import (
	"context"
	"strconv"
	"time"

	"github.com/charlesng35/arenahub/internal/monitoring"
)

// RealtimeObserver exposes the minimal state required to evaluate realtime health.
type RealtimeObserver interface {
	ConnectionCount() int
}

// Realtime reports the number of open sockets. A missing hub degrades the probe
// since the API still serves requests without push updates.
func Realtime(observer RealtimeObserver) monitoring.Check {
	return monitoring.NewCheck("realtime", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if observer == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "realtime hub unavailable",
				Duration: time.Since(start),
			}
		}

		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Details:  strconv.Itoa(observer.ConnectionCount()) + " connections",
			Duration: time.Since(start),
		}
	})
}
