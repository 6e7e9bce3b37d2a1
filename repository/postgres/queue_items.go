package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/omni/gmp-mock-api/db"
	"github.com/omni/gmp-mock-api/entity"
)

type queueItemsRepo basePostgresRepo

func NewQueueItemsRepo(table string, db *db.DB) entity.QueueItemsRepo {
	return (*queueItemsRepo)(newBasePostgresRepo(table, db))
}

func (r *queueItemsRepo) Insert(ctx context.Context, item *entity.QueueItem) error {
	q, args, err := r.psql.Insert(r.table).
		Columns("id", "queue", "item", "properties", "status").
		Values(item.ID, item.Queue, item.Item, item.Properties, entity.QueueItemStatusPending).
		Suffix("RETURNING available_at, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	err = r.db.GetContext(ctx, item, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert queue item: %w", err)
	}
	item.Status = entity.QueueItemStatusPending
	return nil
}

func (r *queueItemsRepo) Claim(ctx context.Context, queue string, lease time.Duration) (*entity.QueueItem, error) {
	available := sq.Or{
		sq.And{
			sq.Eq{"status": entity.QueueItemStatusPending},
			sq.Expr("available_at <= NOW()"),
		},
		sq.And{
			sq.Eq{"status": entity.QueueItemStatusInFlight},
			sq.Expr("lease_expires_at < NOW()"),
		},
	}
	next := sq.Select("id").
		From(r.table).
		Where(sq.Eq{"queue": queue}).
		Where(available).
		OrderBy("available_at", "created_at").
		Limit(1).
		Suffix("FOR UPDATE SKIP LOCKED")
	q, args, err := r.psql.Update(r.table).
		Set("status", entity.QueueItemStatusInFlight).
		Set("attempts", sq.Expr("attempts + 1")).
		Set("lease_expires_at", sq.Expr("NOW() + make_interval(secs => ?)", lease.Seconds())).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Expr("id = (?)", next)).
		Suffix("RETURNING *").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	item := new(entity.QueueItem)
	err = r.db.GetContext(ctx, item, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't claim queue item: %w", err)
	}
	return item, nil
}

func (r *queueItemsRepo) Delete(ctx context.Context, id string) error {
	q, args, err := r.psql.Delete(r.table).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't delete queue item: %w", err)
	}
	return nil
}

func (r *queueItemsRepo) Release(ctx context.Context, id string, lastError string, delay time.Duration) error {
	q, args, err := r.psql.Update(r.table).
		Set("status", entity.QueueItemStatusPending).
		Set("last_error", lastError).
		Set("lease_expires_at", nil).
		Set("available_at", sq.Expr("NOW() + make_interval(secs => ?)", delay.Seconds())).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't release queue item: %w", err)
	}
	return nil
}

func (r *queueItemsRepo) Bury(ctx context.Context, id string, lastError string) error {
	q, args, err := r.psql.Update(r.table).
		Set("status", entity.QueueItemStatusDead).
		Set("last_error", lastError).
		Set("lease_expires_at", nil).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't bury queue item: %w", err)
	}
	return nil
}

func (r *queueItemsRepo) FindDead(ctx context.Context, queue string, limit uint64) ([]*entity.QueueItem, error) {
	q, args, err := r.psql.Select("*").
		From(r.table).
		Where(sq.Eq{"queue": queue, "status": entity.QueueItemStatusDead}).
		OrderBy("updated_at DESC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	items := make([]*entity.QueueItem, 0, limit)
	err = r.db.SelectContext(ctx, &items, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't find dead queue items: %w", err)
	}
	return items, nil
}
