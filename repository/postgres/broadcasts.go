package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/omni/gmp-mock-api/db"
	"github.com/omni/gmp-mock-api/entity"
	"github.com/omni/gmp-mock-api/gmp"
)

type broadcastsRepo basePostgresRepo

func NewBroadcastsRepo(table string, db *db.DB) entity.BroadcastsRepo {
	return (*broadcastsRepo)(newBasePostgresRepo(table, db))
}

func (r *broadcastsRepo) Insert(ctx context.Context, broadcast *entity.Broadcast) error {
	q, args, err := r.psql.Insert(r.table).
		Columns("id", "contract_address", "request_payload", "status").
		Values(broadcast.ID, broadcast.ContractAddress, broadcast.RequestPayload, gmp.BroadcastStatusReceived).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	err = r.db.GetContext(ctx, broadcast, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert broadcast: %w", err)
	}
	broadcast.Status = gmp.BroadcastStatusReceived
	return nil
}

func (r *broadcastsRepo) Complete(ctx context.Context, id string, status gmp.BroadcastStatus, txHash, errMsg *string) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("broadcast can't be completed with status %s", status)
	}
	q, args, err := r.psql.Update(r.table).
		Set("status", status).
		Set("tx_hash", txHash).
		Set("error", errMsg).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "status": gmp.BroadcastStatusReceived}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("can't build query: %w", err)
	}
	ids := make([]string, 0, 1)
	err = r.db.SelectContext(ctx, &ids, q, args...)
	if err != nil {
		return false, fmt.Errorf("can't complete broadcast: %w", err)
	}
	return len(ids) > 0, nil
}

func (r *broadcastsRepo) GetByID(ctx context.Context, id string) (*entity.Broadcast, error) {
	q, args, err := r.psql.Select("*").
		From(r.table).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	broadcast := new(entity.Broadcast)
	err = r.db.GetContext(ctx, broadcast, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get broadcast by id: %w", err)
	}
	return broadcast, nil
}

func (r *broadcastsRepo) FindStuck(ctx context.Context, createdBefore time.Time, limit uint64) ([]*entity.Broadcast, error) {
	q, args, err := r.psql.Select("*").
		From(r.table).
		Where(sq.Eq{"status": gmp.BroadcastStatusReceived}).
		Where(sq.Lt{"created_at": createdBefore}).
		OrderBy("created_at").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	broadcasts := make([]*entity.Broadcast, 0, 5)
	err = r.db.SelectContext(ctx, &broadcasts, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't select stuck broadcasts: %w", err)
	}
	return broadcasts, nil
}
