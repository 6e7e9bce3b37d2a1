package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/omni/gmp-mock-api/db"
	"github.com/omni/gmp-mock-api/entity"
	"github.com/omni/gmp-mock-api/gmp"
)

type eventKey struct {
	typ       gmp.EventType
	messageID string
}

type eventsRepo struct {
	mu     sync.RWMutex
	events map[string]*entity.Event
	byKey  map[eventKey]*entity.Event
}

func NewEventsRepo() entity.EventsRepo {
	return &eventsRepo{
		events: make(map[string]*entity.Event),
		byKey:  make(map[eventKey]*entity.Event),
	}
}

func (r *eventsRepo) Insert(_ context.Context, event *entity.Event) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := eventKey{typ: event.Type, messageID: event.MessageID}
	if _, ok := r.events[event.ID]; ok {
		return false, nil
	}
	if _, ok := r.byKey[key]; ok {
		return false, nil
	}
	now := time.Now()
	row := *event
	row.CreatedAt = &now
	r.events[event.ID] = &row
	r.byKey[key] = &row
	return true, nil
}

func (r *eventsRepo) GetByID(_ context.Context, id string) (*entity.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.events[id]
	if !ok {
		return nil, fmt.Errorf("can't get event by id: %w", db.ErrNotFound)
	}
	row := *event
	return &row, nil
}

func (r *eventsRepo) GetByTypeAndMessageID(_ context.Context, typ gmp.EventType, messageID string) (*entity.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.byKey[eventKey{typ: typ, messageID: messageID}]
	if !ok {
		return nil, fmt.Errorf("can't get event by type and message id: %w", db.ErrNotFound)
	}
	row := *event
	return &row, nil
}
