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

type tasksRepo struct {
	mu    sync.RWMutex
	tasks map[string]*entity.Task
}

func NewTasksRepo() entity.TasksRepo {
	return &tasksRepo{
		tasks: make(map[string]*entity.Task),
	}
}

func (r *tasksRepo) verifyExists(messageID string) bool {
	for _, t := range r.tasks {
		if t.Type == gmp.TaskTypeVerify && t.MessageID != nil && *t.MessageID == messageID {
			return true
		}
	}
	return false
}

func (r *tasksRepo) Upsert(_ context.Context, task *entity.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if task.Type == gmp.TaskTypeVerify && task.MessageID != nil {
		if existing, ok := r.tasks[task.ID]; !ok || existing.MessageID == nil || *existing.MessageID != *task.MessageID {
			if r.verifyExists(*task.MessageID) {
				return fmt.Errorf("task for message %s already exists: %w", *task.MessageID, db.ErrConflict)
			}
		}
	}
	now := time.Now()
	row := *task
	if existing, ok := r.tasks[task.ID]; ok {
		row.CreatedAt = existing.CreatedAt
	} else {
		row.CreatedAt = &now
	}
	row.UpdatedAt = &now
	r.tasks[task.ID] = &row
	return nil
}

func (r *tasksRepo) EnsureVerify(_ context.Context, task *entity.Task) (bool, error) {
	if task.Type != gmp.TaskTypeVerify || task.MessageID == nil {
		return false, fmt.Errorf("expected %s task with a message id, got %s", gmp.TaskTypeVerify, task.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[task.ID]; ok || r.verifyExists(*task.MessageID) {
		return false, nil
	}
	now := time.Now()
	row := *task
	row.CreatedAt = &now
	row.UpdatedAt = &now
	r.tasks[task.ID] = &row
	return true, nil
}

func (r *tasksRepo) GetByID(_ context.Context, id string) (*entity.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("can't get task by id: %w", db.ErrNotFound)
	}
	row := *task
	return &row, nil
}

func (r *tasksRepo) FindAfter(_ context.Context, chain string, afterID string) ([]*entity.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var after *time.Time
	if afterID != "" {
		task, ok := r.tasks[afterID]
		if !ok {
			return nil, fmt.Errorf("can't get cursor task: %w", db.ErrNotFound)
		}
		after = &task.Timestamp
	}
	tasks := make([]*entity.Task, 0, 10)
	for _, t := range r.tasks {
		if t.Chain != chain {
			continue
		}
		if after != nil && !t.Timestamp.After(*after) {
			continue
		}
		row := *t
		tasks = append(tasks, &row)
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Timestamp.Before(tasks[j].Timestamp)
	})
	return tasks, nil
}
