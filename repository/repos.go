package repository

import (
	"github.com/omni/gmp-mock-api/db"
	"github.com/omni/gmp-mock-api/entity"
	"github.com/omni/gmp-mock-api/repository/memory"
	"github.com/omni/gmp-mock-api/repository/postgres"
)

type Repo struct {
	Tasks      entity.TasksRepo
	Events     entity.EventsRepo
	Broadcasts entity.BroadcastsRepo
	QueueItems entity.QueueItemsRepo
}

func NewRepo(db *db.DB) *Repo {
	return &Repo{
		Tasks:      postgres.NewTasksRepo("tasks", db),
		Events:     postgres.NewEventsRepo("events", db),
		Broadcasts: postgres.NewBroadcastsRepo("broadcasts", db),
		QueueItems: postgres.NewQueueItemsRepo("queue_items", db),
	}
}

// NewMemoryRepo returns a repo keeping everything in process memory, used by tests and the mock chain mode.
func NewMemoryRepo() *Repo {
	return &Repo{
		Tasks:      memory.NewTasksRepo(),
		Events:     memory.NewEventsRepo(),
		Broadcasts: memory.NewBroadcastsRepo(),
		QueueItems: memory.NewQueueItemsRepo(),
	}
}
