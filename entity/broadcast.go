package entity

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/omni/gmp-mock-api/gmp"
)

type Broadcast struct {
	ID              string              `db:"id"`
	ContractAddress string              `db:"contract_address"`
	RequestPayload  types.JSONText      `db:"request_payload"`
	Status          gmp.BroadcastStatus `db:"status"`
	TxHash          *string             `db:"tx_hash"`
	Error           *string             `db:"error"`
	CreatedAt       time.Time           `db:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at"`
}

type BroadcastsRepo interface {
	Insert(ctx context.Context, broadcast *Broadcast) error
	// Complete moves a RECEIVED broadcast into a terminal status, reports whether the transition happened.
	Complete(ctx context.Context, id string, status gmp.BroadcastStatus, txHash, errMsg *string) (bool, error)
	GetByID(ctx context.Context, id string) (*Broadcast, error)
	// FindStuck returns RECEIVED broadcasts created before the given time, oldest first.
	FindStuck(ctx context.Context, createdBefore time.Time, limit uint64) ([]*Broadcast, error)
}
