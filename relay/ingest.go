package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/omni/gmp-mock-api/entity"
	"github.com/omni/gmp-mock-api/gmp"
	"github.com/omni/gmp-mock-api/logging"
	"github.com/omni/gmp-mock-api/repository"
)

// EventIngestor accepts a batch of raw events and reports a result for each of them.
type EventIngestor struct {
	logger     logging.Logger
	repo       *repository.Repo
	correlator *Correlator
	messages   *KeyedMutex
	now        func() time.Time
}

func NewEventIngestor(logger logging.Logger, repo *repository.Repo, correlator *Correlator) *EventIngestor {
	return &EventIngestor{
		logger:     logger,
		repo:       repo,
		correlator: correlator,
		messages:   NewKeyedMutex(),
		now:        time.Now,
	}
}

func (i *EventIngestor) Ingest(ctx context.Context, chain string, events []json.RawMessage) []gmp.PostEventResult {
	results := make([]gmp.PostEventResult, 0, len(events))
	for idx, raw := range events {
		results = append(results, i.ingest(ctx, chain, idx, raw))
	}
	return results
}

func (i *EventIngestor) ingest(ctx context.Context, chain string, idx int, raw json.RawMessage) gmp.PostEventResult {
	event, err := gmp.ParseEvent(raw)
	if err != nil {
		IngestedEvents.WithLabelValues(chain, "unknown", "error").Inc()
		return errorResult(idx, err)
	}
	typ := string(event.Header().Type)

	// both halves of a pair must not pass the correlation check concurrently
	unlock := i.messages.Lock(event.MessageID())
	defer unlock()

	if _, ok := event.Header().Type.Complement(); ok {
		if err = i.correlator.Correlate(ctx, chain, event); err != nil {
			i.logger.WithError(err).WithField("event_id", event.Header().EventID).Error("can't correlate event")
			IngestedEvents.WithLabelValues(chain, typ, "error").Inc()
			return errorResult(idx, err)
		}
	}

	row, err := entity.NewEvent(event, i.now())
	if err != nil {
		IngestedEvents.WithLabelValues(chain, typ, "error").Inc()
		return errorResult(idx, err)
	}
	created, err := i.repo.Events.Insert(ctx, row)
	if err != nil {
		i.logger.WithError(err).WithField("event_id", row.ID).Error("can't store event")
		IngestedEvents.WithLabelValues(chain, typ, "error").Inc()
		return errorResult(idx, err)
	}
	if created {
		IngestedEvents.WithLabelValues(chain, typ, "accepted").Inc()
	} else {
		IngestedEvents.WithLabelValues(chain, typ, "duplicate").Inc()
	}
	return gmp.PostEventResult{
		Status: gmp.EventStatusAccepted,
		Index:  idx,
	}
}

// errorResult marks malformed events as final, anything else is worth resubmitting.
func errorResult(idx int, err error) gmp.PostEventResult {
	msg := err.Error()
	retriable := !errors.Is(err, gmp.ErrInvalidEvent)
	return gmp.PostEventResult{
		Status:    gmp.EventStatusError,
		Index:     idx,
		Error:     &msg,
		Retriable: &retriable,
	}
}
