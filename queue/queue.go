package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omni/gmp-mock-api/config"
	"github.com/omni/gmp-mock-api/db"
	"github.com/omni/gmp-mock-api/entity"
	"github.com/omni/gmp-mock-api/gmp"
	"github.com/omni/gmp-mock-api/logging"
	"github.com/omni/gmp-mock-api/utils"
)

type Queue interface {
	Publish(ctx context.Context, item gmp.QueueItem, props *Properties) error
	// Consume blocks until an item is available or ctx is done.
	Consume(ctx context.Context) (*Delivery, error)
}

// Properties are the delivery metadata, carried unchanged through redeliveries.
type Properties struct {
	MessageID     string            `json:"message_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Persistent    bool              `json:"persistent"`
}

type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// Notifier wakes up idle consumers when new items are published.
type Notifier interface {
	Notify(ctx context.Context) error
	Notifications() <-chan struct{}
	Close() error
}

// RepoQueue is an at-least-once queue on top of a QueueItemsRepo. A claimed item is leased
// to a single consumer, an item with an expired lease is delivered again.
type RepoQueue struct {
	name         string
	repo         entity.QueueItemsRepo
	notifier     Notifier
	policy       RetryPolicy
	lease        time.Duration
	pollInterval time.Duration
}

func NewRepoQueue(cfg *config.QueueConfig, repo entity.QueueItemsRepo, notifier Notifier) *RepoQueue {
	return &RepoQueue{
		name:     cfg.Name,
		repo:     repo,
		notifier: notifier,
		policy: RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			Delay:       cfg.RetryDelay,
		},
		lease:        cfg.VisibilityTimeout,
		pollInterval: cfg.PollInterval,
	}
}

func (q *RepoQueue) Name() string {
	return q.name
}

func (q *RepoQueue) Close() error {
	return q.notifier.Close()
}

func (q *RepoQueue) Publish(ctx context.Context, item gmp.QueueItem, props *Properties) error {
	raw, err := gmp.MarshalQueueItem(item)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	if props == nil {
		props = &Properties{Persistent: true}
	}
	if props.MessageID == "" {
		withID := *props
		withID.MessageID = id
		props = &withID
	}
	rawProps, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("can't encode queue item properties: %w", err)
	}
	err = q.repo.Insert(ctx, &entity.QueueItem{
		ID:         id,
		Queue:      q.name,
		Item:       raw,
		Properties: rawProps,
	})
	if err != nil {
		return fmt.Errorf("can't publish %s item: %w", item.Kind(), err)
	}
	PublishedItems.WithLabelValues(q.name, string(item.Kind())).Inc()

	if err = q.notifier.Notify(ctx); err != nil {
		logging.LoggerFromContext(ctx).WithError(err).WithField("queue", q.name).Warn("can't notify queue consumers")
	}
	return nil
}

func (q *RepoQueue) Consume(ctx context.Context) (*Delivery, error) {
	for {
		row, err := q.repo.Claim(ctx, q.name, q.lease)
		switch {
		case err == nil:
			delivery, decodeErr := q.newDelivery(row)
			if decodeErr == nil {
				return delivery, nil
			}
			logging.LoggerFromContext(ctx).WithError(decodeErr).WithFields(logrus.Fields{
				"queue":   q.name,
				"item_id": row.ID,
			}).Error("burying undecodable queue item")
			if err = q.repo.Bury(ctx, row.ID, decodeErr.Error()); err != nil {
				return nil, err
			}
			DeliveryResults.WithLabelValues(q.name, "unknown", "undecodable").Inc()
			continue
		case !errors.Is(err, db.ErrNotFound):
			return nil, err
		}

		if !utils.ContextWait(ctx, q.pollInterval, q.notifier.Notifications()) {
			return nil, ctx.Err()
		}
	}
}

func (q *RepoQueue) newDelivery(row *entity.QueueItem) (*Delivery, error) {
	item, err := gmp.ParseQueueItem(row.Item)
	if err != nil {
		return nil, err
	}
	var props Properties
	if len(row.Properties) > 0 {
		if err = json.Unmarshal(row.Properties, &props); err != nil {
			return nil, fmt.Errorf("can't decode queue item properties: %w", err)
		}
	}
	return &Delivery{
		ID:         row.ID,
		Item:       item,
		Properties: props,
		Attempts:   row.Attempts,
		queue:      q,
	}, nil
}

// Dead returns the most recently dead-lettered items.
func (q *RepoQueue) Dead(ctx context.Context, limit uint64) ([]*entity.QueueItem, error) {
	return q.repo.FindDead(ctx, q.name, limit)
}

// Delivery is a single claimed item, it must be either acked or nacked.
type Delivery struct {
	ID         string
	Item       gmp.QueueItem
	Properties Properties
	// Attempts counts deliveries of the item including the current one.
	Attempts int

	queue *RepoQueue
}

func (d *Delivery) Ack(ctx context.Context) error {
	if err := d.queue.repo.Delete(ctx, d.ID); err != nil {
		return fmt.Errorf("can't ack queue item %s: %w", d.ID, err)
	}
	DeliveryResults.WithLabelValues(d.queue.name, string(d.Item.Kind()), "ack").Inc()
	return nil
}

// Nack returns the item to the queue until the retry policy is exhausted, the item is
// dead-lettered right away when requeue is false.
func (d *Delivery) Nack(ctx context.Context, requeue bool, reason string) error {
	q := d.queue
	if !requeue || q.policy.Exhausted(d.Attempts) {
		if err := q.repo.Bury(ctx, d.ID, reason); err != nil {
			return fmt.Errorf("can't dead-letter queue item %s: %w", d.ID, err)
		}
		DeliveryResults.WithLabelValues(q.name, string(d.Item.Kind()), "dead").Inc()
		return nil
	}
	if err := q.repo.Release(ctx, d.ID, reason, q.policy.Delay); err != nil {
		return fmt.Errorf("can't requeue queue item %s: %w", d.ID, err)
	}
	DeliveryResults.WithLabelValues(q.name, string(d.Item.Kind()), "requeue").Inc()
	return nil
}
