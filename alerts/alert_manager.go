package alerts

import (
	"context"
	"time"

	"github.com/omni/gmp-mock-api/config"
	"github.com/omni/gmp-mock-api/logging"
)

type AlertManager struct {
	logger logging.Logger
	jobs   map[string]*Job
}

func NewAlertManager(logger logging.Logger, cfg *config.AlertsConfig, queue string, provider *RepoAlertsProvider) *AlertManager {
	jobs := map[string]*Job{
		"stuck_broadcast": {
			Interval: cfg.Interval,
			Timeout:  10 * time.Second,
			Func: func(ctx context.Context) ([]Alert, error) {
				return provider.FindStuckBroadcasts(ctx, cfg.StuckBroadcastAfter)
			},
			Metric: AlertStuckBroadcast,
		},
		"dead_queue_item": {
			Interval: cfg.Interval,
			Timeout:  10 * time.Second,
			Func: func(ctx context.Context) ([]Alert, error) {
				return provider.FindDeadQueueItems(ctx, queue)
			},
			Metric: AlertDeadQueueItem,
		},
	}
	for name, job := range jobs {
		job.logger = logger.WithField("alert_job", name)
	}
	return &AlertManager{
		logger: logger,
		jobs:   jobs,
	}
}

// Start runs every alert job in the background until ctx is done.
func (m *AlertManager) Start(ctx context.Context) {
	m.logger.Info("starting alert manager jobs")
	for _, job := range m.jobs {
		go job.Start(ctx)
	}
}
