package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/omni/gmp-mock-api/db"
	"github.com/omni/gmp-mock-api/entity"
	"github.com/omni/gmp-mock-api/gmp"
)

type tasksRepo basePostgresRepo

func NewTasksRepo(table string, db *db.DB) entity.TasksRepo {
	return (*tasksRepo)(newBasePostgresRepo(table, db))
}

func (r *tasksRepo) Upsert(ctx context.Context, task *entity.Task) error {
	q, args, err := r.psql.Insert(r.table).
		Columns("id", "chain", "timestamp", "type", "message_id", "task").
		Values(task.ID, task.Chain, task.Timestamp, task.Type, task.MessageID, task.Task).
		Suffix("ON CONFLICT (id) DO UPDATE SET chain = EXCLUDED.chain, timestamp = EXCLUDED.timestamp, type = EXCLUDED.type, message_id = EXCLUDED.message_id, task = EXCLUDED.task, updated_at = NOW()").
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("task for message %v already exists: %w", task.MessageID, db.ErrConflict)
		}
		return fmt.Errorf("can't upsert task: %w", err)
	}
	return nil
}

func (r *tasksRepo) EnsureVerify(ctx context.Context, task *entity.Task) (bool, error) {
	if task.Type != gmp.TaskTypeVerify || task.MessageID == nil {
		return false, fmt.Errorf("expected %s task with a message id, got %s", gmp.TaskTypeVerify, task.Type)
	}
	q, args, err := r.psql.Insert(r.table).
		Columns("id", "chain", "timestamp", "type", "message_id", "task").
		Values(task.ID, task.Chain, task.Timestamp, task.Type, task.MessageID, task.Task).
		Suffix("ON CONFLICT DO NOTHING").
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("can't build query: %w", err)
	}
	ids := make([]string, 0, 1)
	err = r.db.SelectContext(ctx, &ids, q, args...)
	if err != nil {
		return false, fmt.Errorf("can't insert verify task: %w", err)
	}
	return len(ids) > 0, nil
}

func (r *tasksRepo) GetByID(ctx context.Context, id string) (*entity.Task, error) {
	q, args, err := r.psql.Select("*").
		From(r.table).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	task := new(entity.Task)
	err = r.db.GetContext(ctx, task, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get task by id: %w", err)
	}
	return task, nil
}

func (r *tasksRepo) FindAfter(ctx context.Context, chain string, afterID string) ([]*entity.Task, error) {
	builder := r.psql.Select("*").
		From(r.table).
		Where(sq.Eq{"chain": chain}).
		OrderBy("timestamp")
	if afterID != "" {
		after, err := r.GetByID(ctx, afterID)
		if err != nil {
			return nil, fmt.Errorf("can't get cursor task: %w", err)
		}
		builder = builder.Where(sq.Gt{"timestamp": after.Timestamp})
	}
	q, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	tasks := make([]*entity.Task, 0, 10)
	err = r.db.SelectContext(ctx, &tasks, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't find tasks: %w", err)
	}
	return tasks, nil
}
