package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omni/gmp-mock-api/db"
	"github.com/omni/gmp-mock-api/entity"
	"github.com/omni/gmp-mock-api/gmp"
	"github.com/omni/gmp-mock-api/logging"
	"github.com/omni/gmp-mock-api/repository"
)

var ErrExpectedCallEvent = errors.New("expected CALL event")

// Correlator creates a VERIFY task once both the CALL and the GAS_CREDIT events of a message have arrived.
type Correlator struct {
	logger logging.Logger
	repo   *repository.Repo
	now    func() time.Time
}

func NewCorrelator(logger logging.Logger, repo *repository.Repo) *Correlator {
	return &Correlator{
		logger: logger,
		repo:   repo,
		now:    time.Now,
	}
}

// Correlate must be called before the event itself is stored.
func (c *Correlator) Correlate(ctx context.Context, chain string, event gmp.Event) error {
	header := event.Header()
	complement, ok := header.Type.Complement()
	if !ok {
		return fmt.Errorf("%s events are not correlated", header.Type)
	}
	messageID := event.MessageID()
	logger := c.logger.WithFields(logrus.Fields{
		"chain":      chain,
		"event_id":   header.EventID,
		"event_type": header.Type,
		"message_id": messageID,
	})

	_, err := c.repo.Events.GetByTypeAndMessageID(ctx, header.Type, messageID)
	if err == nil {
		logger.Warn("event with the same type and message id already exists")
		return nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("can't find %s event: %w", header.Type, err)
	}

	row, err := c.repo.Events.GetByTypeAndMessageID(ctx, complement, messageID)
	if errors.Is(err, db.ErrNotFound) {
		logger.WithField("missing_type", complement).Debug("waiting for the complementary event")
		return nil
	}
	if err != nil {
		return fmt.Errorf("can't find %s event: %w", complement, err)
	}
	other, err := row.Decode()
	if err != nil {
		return fmt.Errorf("can't decode stored %s event %s: %w", complement, row.ID, err)
	}

	call, err := pickCallEvent(event, other)
	if err != nil {
		return err
	}
	task, err := entity.NewTask(newVerifyTask(chain, call, c.now()))
	if err != nil {
		return err
	}
	created, err := c.repo.Tasks.EnsureVerify(ctx, task)
	if err != nil {
		return fmt.Errorf("can't store verify task: %w", err)
	}
	VerifyTasks.WithLabelValues(chain, strconv.FormatBool(created)).Inc()
	if !created {
		logger.Warn("verify task for the message already exists")
		return nil
	}
	logger.WithField("task_id", task.ID).Info("created verify task")
	return nil
}

func pickCallEvent(events ...gmp.Event) (*gmp.CallEvent, error) {
	for _, event := range events {
		if event.Header().Type != gmp.EventTypeCall {
			continue
		}
		call, ok := event.(*gmp.CallEvent)
		if !ok {
			return nil, fmt.Errorf("unexpected %T for %s: %w", event, gmp.EventTypeCall, ErrExpectedCallEvent)
		}
		return call, nil
	}
	return nil, ErrExpectedCallEvent
}

func newVerifyTask(chain string, call *gmp.CallEvent, now time.Time) *gmp.VerifyTask {
	return &gmp.VerifyTask{
		TaskHeader: gmp.TaskHeader{
			ID:        uuid.NewString(),
			Chain:     chain,
			Timestamp: now.UTC().Format(time.RFC3339Nano),
			Type:      gmp.TaskTypeVerify,
			Meta:      call.Meta.TaskMetadata(),
		},
		Task: gmp.VerifyTaskFields{
			Message: call.Message,
			Payload: call.Payload,
		},
	}
}
