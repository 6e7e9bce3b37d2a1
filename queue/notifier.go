package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/omni/gmp-mock-api/config"
	"github.com/omni/gmp-mock-api/db"
	"github.com/omni/gmp-mock-api/entity"
	"github.com/omni/gmp-mock-api/logging"
	"github.com/omni/gmp-mock-api/repository/memory"
)

const (
	listenerMinReconnectInterval = time.Second
	listenerMaxReconnectInterval = time.Minute
)

type chanNotifier struct {
	ch chan struct{}
}

// NewChanNotifier wakes up consumers of the same process only.
func NewChanNotifier() Notifier {
	return &chanNotifier{ch: make(chan struct{}, 1)}
}

func (n *chanNotifier) Notify(context.Context) error {
	select {
	case n.ch <- struct{}{}:
	default:
	}
	return nil
}

func (n *chanNotifier) Notifications() <-chan struct{} {
	return n.ch
}

func (n *chanNotifier) Close() error {
	return nil
}

// pgNotifier relays postgres NOTIFY messages on the queue channel to idle consumers.
type pgNotifier struct {
	channel  string
	db       *db.DB
	listener *pq.Listener
	ch       chan struct{}
}

func newPgNotifier(database *db.DB, channel string, logger logging.Logger) (*pgNotifier, error) {
	listener := pq.NewListener(database.ConnString(), listenerMinReconnectInterval, listenerMaxReconnectInterval,
		func(event pq.ListenerEventType, err error) {
			if err != nil {
				logger.WithError(err).WithFields(logrus.Fields{
					"channel": channel,
					"event":   event,
				}).Warn("queue listener connection problem")
			}
		})
	if err := listener.Listen(channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("can't listen on %s channel: %w", channel, err)
	}
	n := &pgNotifier{
		channel:  channel,
		db:       database,
		listener: listener,
		ch:       make(chan struct{}, 1),
	}
	go n.forward()
	return n, nil
}

func (n *pgNotifier) forward() {
	// a nil notification is sent after a reconnect, items might have been missed, so it wakes consumers too
	for range n.listener.Notify {
		select {
		case n.ch <- struct{}{}:
		default:
		}
	}
}

func (n *pgNotifier) Notify(ctx context.Context) error {
	_, err := n.db.ExecContext(ctx, "SELECT pg_notify($1, '')", n.channel)
	if err != nil {
		return fmt.Errorf("can't notify %s channel: %w", n.channel, err)
	}
	return nil
}

func (n *pgNotifier) Notifications() <-chan struct{} {
	return n.ch
}

func (n *pgNotifier) Close() error {
	return n.listener.Close()
}

// NewPostgresQueue is a durable queue, publishers wake consumers up through LISTEN/NOTIFY.
func NewPostgresQueue(cfg *config.QueueConfig, database *db.DB, repo entity.QueueItemsRepo, logger logging.Logger) (*RepoQueue, error) {
	notifier, err := newPgNotifier(database, "gmp_queue_"+cfg.Name, logger)
	if err != nil {
		return nil, err
	}
	return NewRepoQueue(cfg, repo, notifier), nil
}

// NewMemoryQueue keeps items in process memory, deliveries do not survive a restart.
func NewMemoryQueue(cfg *config.QueueConfig) *RepoQueue {
	return NewRepoQueue(cfg, memory.NewQueueItemsRepo(), NewChanNotifier())
}
