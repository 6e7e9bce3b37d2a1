package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/omni/gmp-mock-api/entity"
	"github.com/omni/gmp-mock-api/gmp"
)

const (
	alertsLimit       = 100
	maxLastErrorLabel = 128
)

type RepoAlertsProvider struct {
	broadcasts entity.BroadcastsRepo
	queueItems entity.QueueItemsRepo
	now        func() time.Time
}

func NewRepoAlertsProvider(broadcasts entity.BroadcastsRepo, queueItems entity.QueueItemsRepo) *RepoAlertsProvider {
	return &RepoAlertsProvider{
		broadcasts: broadcasts,
		queueItems: queueItems,
		now:        time.Now,
	}
}

func (p *RepoAlertsProvider) FindStuckBroadcasts(ctx context.Context, stuckAfter time.Duration) ([]Alert, error) {
	now := p.now()
	broadcasts, err := p.broadcasts.FindStuck(ctx, now.Add(-stuckAfter), alertsLimit)
	if err != nil {
		return nil, fmt.Errorf("can't find stuck broadcasts: %w", err)
	}
	alerts := make([]Alert, 0, len(broadcasts))
	for _, broadcast := range broadcasts {
		alerts = append(alerts, Alert{
			Labels: prometheus.Labels{
				"broadcast_id":     broadcast.ID,
				"contract_address": broadcast.ContractAddress,
			},
			Value: now.Sub(broadcast.CreatedAt).Seconds(),
		})
	}
	return alerts, nil
}

func (p *RepoAlertsProvider) FindDeadQueueItems(ctx context.Context, queue string) ([]Alert, error) {
	items, err := p.queueItems.FindDead(ctx, queue, alertsLimit)
	if err != nil {
		return nil, fmt.Errorf("can't find dead queue items: %w", err)
	}
	alerts := make([]Alert, 0, len(items))
	for _, row := range items {
		kind := "unknown"
		if item, err2 := gmp.ParseQueueItem(row.Item); err2 == nil {
			kind = string(item.Kind())
		}
		lastError := ""
		if row.LastError != nil {
			lastError = *row.LastError
		}
		if len(lastError) > maxLastErrorLabel {
			lastError = lastError[:maxLastErrorLabel]
		}
		alerts = append(alerts, Alert{
			Labels: prometheus.Labels{
				"queue":      row.Queue,
				"item_id":    row.ID,
				"kind":       kind,
				"last_error": lastError,
			},
			Value: float64(row.Attempts),
		})
	}
	return alerts, nil
}

