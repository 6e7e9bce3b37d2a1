package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/omni/gmp-mock-api/db"
	"github.com/omni/gmp-mock-api/entity"
	"github.com/omni/gmp-mock-api/gmp"
)

type broadcastsRepo struct {
	mu         sync.RWMutex
	broadcasts map[string]*entity.Broadcast
}

func NewBroadcastsRepo() entity.BroadcastsRepo {
	return &broadcastsRepo{
		broadcasts: make(map[string]*entity.Broadcast),
	}
}

func (r *broadcastsRepo) Insert(_ context.Context, broadcast *entity.Broadcast) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.broadcasts[broadcast.ID]; ok {
		return fmt.Errorf("can't insert broadcast %s: %w", broadcast.ID, db.ErrConflict)
	}
	now := time.Now().UTC()
	broadcast.Status = gmp.BroadcastStatusReceived
	broadcast.CreatedAt = now
	broadcast.UpdatedAt = now
	row := *broadcast
	r.broadcasts[broadcast.ID] = &row
	return nil
}

func (r *broadcastsRepo) Complete(_ context.Context, id string, status gmp.BroadcastStatus, txHash, errMsg *string) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("broadcast can't be completed with status %s", status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	broadcast, ok := r.broadcasts[id]
	if !ok || broadcast.Status != gmp.BroadcastStatusReceived {
		return false, nil
	}
	broadcast.Status = status
	broadcast.TxHash = txHash
	broadcast.Error = errMsg
	broadcast.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *broadcastsRepo) GetByID(_ context.Context, id string) (*entity.Broadcast, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	broadcast, ok := r.broadcasts[id]
	if !ok {
		return nil, fmt.Errorf("can't get broadcast by id: %w", db.ErrNotFound)
	}
	row := *broadcast
	return &row, nil
}

func (r *broadcastsRepo) FindStuck(_ context.Context, createdBefore time.Time, limit uint64) ([]*entity.Broadcast, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	broadcasts := make([]*entity.Broadcast, 0, 5)
	for _, broadcast := range r.broadcasts {
		if broadcast.Status == gmp.BroadcastStatusReceived && broadcast.CreatedAt.Before(createdBefore) {
			row := *broadcast
			broadcasts = append(broadcasts, &row)
		}
	}
	sort.Slice(broadcasts, func(i, j int) bool {
		return broadcasts[i].CreatedAt.Before(broadcasts[j].CreatedAt)
	})
	if uint64(len(broadcasts)) > limit {
		broadcasts = broadcasts[:limit]
	}
	return broadcasts, nil
}
