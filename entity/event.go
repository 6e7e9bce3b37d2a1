package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/omni/gmp-mock-api/gmp"
)

type Event struct {
	ID        string         `db:"id"`
	Type      gmp.EventType  `db:"type"`
	MessageID string         `db:"message_id"`
	Timestamp time.Time      `db:"timestamp"`
	Event     types.JSONText `db:"event"`
	CreatedAt *time.Time     `db:"created_at"`
}

func NewEvent(event gmp.Event, now time.Time) (*Event, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("can't encode event: %w", err)
	}
	return &Event{
		ID:        event.Header().EventID,
		Type:      event.Header().Type,
		MessageID: event.MessageID(),
		Timestamp: gmp.EventTime(event, now),
		Event:     raw,
	}, nil
}

func (e *Event) Decode() (gmp.Event, error) {
	return gmp.ParseEvent(e.Event)
}

type EventsRepo interface {
	// Insert stores the event unless an event with the same id or the same (type, message id) exists, reports whether it was created.
	Insert(ctx context.Context, event *Event) (bool, error)
	GetByID(ctx context.Context, id string) (*Event, error)
	GetByTypeAndMessageID(ctx context.Context, typ gmp.EventType, messageID string) (*Event, error)
}
