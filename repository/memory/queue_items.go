package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/omni/gmp-mock-api/db"
	"github.com/omni/gmp-mock-api/entity"
)

type queueItemsRepo struct {
	mu    sync.Mutex
	items map[string]*entity.QueueItem
	now   func() time.Time
}

func NewQueueItemsRepo() entity.QueueItemsRepo {
	return &queueItemsRepo{
		items: make(map[string]*entity.QueueItem),
		now:   time.Now,
	}
}

func (r *queueItemsRepo) Insert(_ context.Context, item *entity.QueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[item.ID]; ok {
		return fmt.Errorf("can't insert queue item %s: %w", item.ID, db.ErrConflict)
	}
	now := r.now()
	item.Status = entity.QueueItemStatusPending
	item.AvailableAt = now
	item.CreatedAt = now
	item.UpdatedAt = now
	row := *item
	r.items[item.ID] = &row
	return nil
}

func (r *queueItemsRepo) Claim(_ context.Context, queue string, lease time.Duration) (*entity.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	candidates := make([]*entity.QueueItem, 0, len(r.items))
	for _, item := range r.items {
		if item.Queue != queue {
			continue
		}
		pending := item.Status == entity.QueueItemStatusPending && !item.AvailableAt.After(now)
		expired := item.Status == entity.QueueItemStatusInFlight && item.LeaseExpiresAt != nil && item.LeaseExpiresAt.Before(now)
		if pending || expired {
			candidates = append(candidates, item)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("can't claim queue item: %w", db.ErrNotFound)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].AvailableAt.Equal(candidates[j].AvailableAt) {
			return candidates[i].AvailableAt.Before(candidates[j].AvailableAt)
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	item := candidates[0]
	leaseExpiresAt := now.Add(lease)
	item.Status = entity.QueueItemStatusInFlight
	item.Attempts++
	item.LeaseExpiresAt = &leaseExpiresAt
	item.UpdatedAt = now
	row := *item
	return &row, nil
}

func (r *queueItemsRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, id)
	return nil
}

func (r *queueItemsRepo) Release(_ context.Context, id string, lastError string, delay time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return fmt.Errorf("can't release queue item: %w", db.ErrNotFound)
	}
	now := r.now()
	item.Status = entity.QueueItemStatusPending
	item.LastError = &lastError
	item.LeaseExpiresAt = nil
	item.AvailableAt = now.Add(delay)
	item.UpdatedAt = now
	return nil
}

func (r *queueItemsRepo) Bury(_ context.Context, id string, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return fmt.Errorf("can't bury queue item: %w", db.ErrNotFound)
	}
	item.Status = entity.QueueItemStatusDead
	item.LastError = &lastError
	item.LeaseExpiresAt = nil
	item.UpdatedAt = r.now()
	return nil
}

func (r *queueItemsRepo) FindDead(_ context.Context, queue string, limit uint64) ([]*entity.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]*entity.QueueItem, 0, limit)
	for _, item := range r.items {
		if item.Queue == queue && item.Status == entity.QueueItemStatusDead {
			row := *item
			items = append(items, &row)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	if uint64(len(items)) > limit {
		items = items[:limit]
	}
	return items, nil
}
