package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/omni/gmp-mock-api/gmp"
)

type Task struct {
	ID        string         `db:"id"`
	Chain     string         `db:"chain"`
	Timestamp time.Time      `db:"timestamp"`
	Type      gmp.TaskType   `db:"type"`
	MessageID *string        `db:"message_id"`
	Task      types.JSONText `db:"task"`
	CreatedAt *time.Time     `db:"created_at"`
	UpdatedAt *time.Time     `db:"updated_at"`
}

// NewTask builds a task row out of the decoded task.
func NewTask(task gmp.Task) (*Task, error) {
	header := task.Header()
	ts, err := header.Time()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("can't encode task: %w", err)
	}
	row := &Task{
		ID:        header.ID,
		Chain:     header.Chain,
		Timestamp: ts,
		Type:      header.Type,
		Task:      raw,
	}
	if messageID := gmp.TaskMessageID(task); messageID != "" {
		row.MessageID = &messageID
	}
	return row, nil
}

func (t *Task) Decode() (gmp.Task, error) {
	return gmp.ParseTask(t.Task)
}

type TasksRepo interface {
	Upsert(ctx context.Context, task *Task) error
	// EnsureVerify inserts a VERIFY task unless one already exists for the same message, reports whether it was created.
	EnsureVerify(ctx context.Context, task *Task) (bool, error)
	GetByID(ctx context.Context, id string) (*Task, error)
	FindAfter(ctx context.Context, chain string, afterID string) ([]*Task, error)
}
