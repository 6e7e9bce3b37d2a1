package entity

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx/types"
)

type QueueItemStatus string

const (
	QueueItemStatusPending  QueueItemStatus = "PENDING"
	QueueItemStatusInFlight QueueItemStatus = "IN_FLIGHT"
	QueueItemStatusDead     QueueItemStatus = "DEAD"
)

type QueueItem struct {
	ID             string          `db:"id"`
	Queue          string          `db:"queue"`
	Item           types.JSONText  `db:"item"`
	Properties     types.JSONText  `db:"properties"`
	Status         QueueItemStatus `db:"status"`
	Attempts       int             `db:"attempts"`
	LastError      *string         `db:"last_error"`
	AvailableAt    time.Time       `db:"available_at"`
	LeaseExpiresAt *time.Time      `db:"lease_expires_at"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

type QueueItemsRepo interface {
	Insert(ctx context.Context, item *QueueItem) error
	// Claim leases the oldest available item of the queue, items with an expired lease are available again.
	Claim(ctx context.Context, queue string, lease time.Duration) (*QueueItem, error)
	Delete(ctx context.Context, id string) error
	Release(ctx context.Context, id string, lastError string, delay time.Duration) error
	Bury(ctx context.Context, id string, lastError string) error
	FindDead(ctx context.Context, queue string, limit uint64) ([]*QueueItem, error)
}
