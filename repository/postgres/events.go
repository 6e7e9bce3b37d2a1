package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/omni/gmp-mock-api/db"
	"github.com/omni/gmp-mock-api/entity"
	"github.com/omni/gmp-mock-api/gmp"
)

type eventsRepo basePostgresRepo

func NewEventsRepo(table string, db *db.DB) entity.EventsRepo {
	return (*eventsRepo)(newBasePostgresRepo(table, db))
}

func (r *eventsRepo) Insert(ctx context.Context, event *entity.Event) (bool, error) {
	q, args, err := r.psql.Insert(r.table).
		Columns("id", "type", "message_id", "timestamp", "event").
		Values(event.ID, event.Type, event.MessageID, event.Timestamp, event.Event).
		Suffix("ON CONFLICT DO NOTHING").
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("can't build query: %w", err)
	}
	ids := make([]string, 0, 1)
	err = r.db.SelectContext(ctx, &ids, q, args...)
	if err != nil {
		return false, fmt.Errorf("can't insert event: %w", err)
	}
	return len(ids) > 0, nil
}

func (r *eventsRepo) GetByID(ctx context.Context, id string) (*entity.Event, error) {
	q, args, err := r.psql.Select("*").
		From(r.table).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	event := new(entity.Event)
	err = r.db.GetContext(ctx, event, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get event by id: %w", err)
	}
	return event, nil
}

func (r *eventsRepo) GetByTypeAndMessageID(ctx context.Context, typ gmp.EventType, messageID string) (*entity.Event, error) {
	q, args, err := r.psql.Select("*").
		From(r.table).
		Where(sq.Eq{"type": typ, "message_id": messageID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	event := new(entity.Event)
	err = r.db.GetContext(ctx, event, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get event by type and message id: %w", err)
	}
	return event, nil
}
