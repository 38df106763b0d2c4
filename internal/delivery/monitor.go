package delivery

import (
	"context"
	"time"

	"github.com/driftmarket/hookline/internal/hook"
	"github.com/driftmarket/hookline/internal/logging"
	"github.com/driftmarket/hookline/internal/metrics"
)

// HealthMonitor periodically quarantines active endpoints whose
// consecutive-failure counter has reached the threshold. Quarantine only
// stops new fan-outs; retries already scheduled keep running and terminate
// themselves once they observe the non-active status.
type HealthMonitor struct {
	endpoints hook.EndpointStore
	interval  time.Duration
	threshold int
	log       *logging.Logger
}

func NewHealthMonitor(endpoints hook.EndpointStore, interval time.Duration, threshold int, log *logging.Logger) *HealthMonitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if threshold <= 0 {
		threshold = 10
	}
	return &HealthMonitor{
		endpoints: endpoints,
		interval:  interval,
		threshold: threshold,
		log:       log,
	}
}

// Run blocks, sweeping on every tick until the context is cancelled.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Plain().Info("health monitor exiting")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep demotes every endpoint over the threshold in one store round trip.
func (m *HealthMonitor) Sweep(ctx context.Context) {
	ids, err := m.endpoints.Quarantine(ctx, m.threshold)
	if err != nil {
		m.log.WithContext(ctx).WithError(err).Error("quarantine sweep failed")
		return
	}
	if len(ids) == 0 {
		return
	}
	metrics.RecordQuarantine(len(ids))
	for _, id := range ids {
		m.log.WithContext(ctx).WithEndpoint(id).WithField("threshold", m.threshold).Warn("endpoint quarantined")
	}
}
