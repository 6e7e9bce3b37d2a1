package subscriber

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omni/gmp-mock-api/chainclient"
	"github.com/omni/gmp-mock-api/config"
	"github.com/omni/gmp-mock-api/entity"
	"github.com/omni/gmp-mock-api/gmp"
	"github.com/omni/gmp-mock-api/logging"
	"github.com/omni/gmp-mock-api/queue"
	"github.com/omni/gmp-mock-api/repository"
	"github.com/omni/gmp-mock-api/utils"
)

const (
	EventQuorumReached    = "wasm-quorum_reached"
	EventSigningCompleted = "wasm-signing_completed"
	AttributePollID       = "poll_id"
	AttributeSessionID    = "session_id"

	consumeErrorBackoff = 5 * time.Second
)

var errUnsupportedItem = errors.New("unsupported queue item")

// Subscriber turns follow-up queue items into tasks once the awaited event shows up on chain.
type Subscriber struct {
	logger logging.Logger
	cfg    *config.RelayConfig
	repo   *repository.Repo
	client chainclient.Client
	queue  queue.Queue
}

func NewSubscriber(logger logging.Logger, cfg *config.RelayConfig, repo *repository.Repo, client chainclient.Client, q queue.Queue) *Subscriber {
	return &Subscriber{
		logger: logger,
		cfg:    cfg,
		repo:   repo,
		client: client,
		queue:  q,
	}
}

// Run handles one delivery at a time until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	s.logger.Info("starting queue subscriber")
	for {
		delivery, err := s.queue.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("stopping queue subscriber")
				return nil
			}
			s.logger.WithError(err).Error("can't consume queue item")
			if utils.ContextSleep(ctx, consumeErrorBackoff) == nil {
				return nil
			}
			continue
		}
		if err = s.Work(ctx, delivery); err != nil {
			s.logger.WithError(err).WithField("item_id", delivery.ID).Error("can't settle queue item")
		}
	}
}

// Work handles a single delivery and acks it, failed items are nacked, too old ones are not requeued.
func (s *Subscriber) Work(ctx context.Context, delivery *queue.Delivery) error {
	kind := string(delivery.Item.Kind())
	logger := s.logger.WithFields(logrus.Fields{
		"item_id":  delivery.ID,
		"kind":     kind,
		"attempts": delivery.Attempts,
	})

	var err error
	switch item := delivery.Item.(type) {
	case *gmp.VerifyMessagesItem:
		err = s.HandleVerifyMessages(ctx, item)
	case *gmp.ConstructProofItem:
		err = s.HandleConstructProof(ctx, item)
	default:
		err = fmt.Errorf("%T: %w", item, errUnsupportedItem)
	}
	if err == nil {
		WorkResults.WithLabelValues(kind, "task_created").Inc()
		return delivery.Ack(ctx)
	}

	terminal := errors.Is(err, ErrTooOld) || errors.Is(err, errUnsupportedItem)
	switch {
	case errors.Is(err, ErrTooOld):
		WorkResults.WithLabelValues(kind, "too_old").Inc()
		logger.WithError(err).Warn("awaited event is older than the broadcast, dropping item")
	case terminal:
		WorkResults.WithLabelValues(kind, "failed").Inc()
		logger.WithError(err).Error("can't handle queue item")
	default:
		WorkResults.WithLabelValues(kind, "retry").Inc()
		logger.WithError(err).Warn("can't handle queue item yet, requeueing")
	}
	return delivery.Nack(ctx, !terminal, err.Error())
}

func (s *Subscriber) HandleVerifyMessages(ctx context.Context, item *gmp.VerifyMessagesItem) error {
	logger := s.logger.WithField("poll_id", item.PollID)
	match, err := FindEvent(ctx, logger, s.client, EventQuery{
		ContractAddress: item.ContractAddress,
		EventType:       EventQuorumReached,
		Attribute:       AttributePollID,
		Value:           item.PollID,
		CreatedAt:       item.BroadcastCreatedAt,
	})
	if err != nil {
		return err
	}

	attrs := make([]gmp.EventAttribute, 0, len(match.Event.Attributes))
	for _, attr := range match.Event.Attributes {
		attrs = append(attrs, gmp.EventAttribute{Key: attr.Key, Value: attr.Value})
	}
	task := &gmp.ReactToWasmEventTask{
		TaskHeader: newTaskHeader(item.Chain, gmp.TaskTypeReactToWasmEvent, match.Timestamp),
		Task: gmp.ReactToWasmEventTaskFields{
			Event: gmp.WasmEvent{
				Type:       match.Event.Type,
				Attributes: attrs,
			},
			Height: match.Height,
		},
	}
	return s.storeTask(ctx, logger, task)
}

func (s *Subscriber) HandleConstructProof(ctx context.Context, item *gmp.ConstructProofItem) error {
	logger := s.logger.WithField("session_id", item.SessionID)
	match, err := FindEvent(ctx, logger, s.client, EventQuery{
		ContractAddress: item.ContractAddress,
		EventType:       EventSigningCompleted,
		Attribute:       AttributeSessionID,
		Value:           item.SessionID,
		CreatedAt:       item.BroadcastCreatedAt,
	})
	if err != nil {
		return err
	}

	prover := item.ProverAddress
	if prover == "" {
		prover = s.cfg.ProverAddress
	}
	if prover == "" {
		return fmt.Errorf("prover address is unknown for session %s", item.SessionID)
	}
	executeData, err := s.queryExecuteData(ctx, prover, item.SessionID)
	if err != nil {
		return err
	}
	if executeData == "" {
		logger.WithField("prover_address", prover).Warn("proof has no execute data")
	}
	encoded, isHex := EncodeExecuteData(executeData)
	if !isHex {
		logger.WithField("prover_address", prover).Warn("execute data is not hex encoded, encoding it as is")
	}

	task := &gmp.GatewayTxTask{
		TaskHeader: newTaskHeader(item.Chain, gmp.TaskTypeGatewayTx, match.Timestamp),
		Task: gmp.GatewayTxTaskFields{
			ExecuteData: encoded,
		},
	}
	return s.storeTask(ctx, logger, task)
}

type proofResponse struct {
	Data struct {
		Status struct {
			Completed struct {
				ExecuteData string `json:"execute_data"`
			} `json:"completed"`
		} `json:"status"`
	} `json:"data"`
}

func (s *Subscriber) queryExecuteData(ctx context.Context, prover, sessionID string) (string, error) {
	query, err := json.Marshal(map[string]map[string]string{
		"proof": {"multisig_session_id": strings.Trim(sessionID, `"`)},
	})
	if err != nil {
		return "", fmt.Errorf("can't encode proof query: %w", err)
	}
	out, err := s.client.QueryContractState(ctx, prover, query)
	if err != nil {
		return "", fmt.Errorf("can't query proof: %w", err)
	}
	var res proofResponse
	if err = json.Unmarshal(out, &res); err != nil {
		return "", fmt.Errorf("can't decode proof: %w", err)
	}
	return res.Data.Status.Completed.ExecuteData, nil
}

// EncodeExecuteData converts the hex encoded execute data of a proof into base64.
// Data that is not hex is encoded as is and reported with isHex set to false.
func EncodeExecuteData(executeData string) (encoded string, isHex bool) {
	raw := strings.TrimPrefix(strings.TrimPrefix(executeData, "0x"), "0X")
	if len(raw)%2 != 0 || strings.IndexFunc(raw, func(c rune) bool { return !isHexChar(c) }) >= 0 {
		return base64.StdEncoding.EncodeToString([]byte(executeData)), false
	}
	return base64.StdEncoding.EncodeToString(common.FromHex(executeData)), true
}

func isHexChar(c rune) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func newTaskHeader(chain string, typ gmp.TaskType, ts time.Time) gmp.TaskHeader {
	return gmp.TaskHeader{
		ID:        uuid.NewString(),
		Chain:     chain,
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Type:      typ,
	}
}

func (s *Subscriber) storeTask(ctx context.Context, logger logging.Logger, task gmp.Task) error {
	row, err := entity.NewTask(task)
	if err != nil {
		return err
	}
	if err = s.repo.Tasks.Upsert(ctx, row); err != nil {
		return fmt.Errorf("can't store %s task: %w", row.Type, err)
	}
	logger.WithFields(logrus.Fields{
		"task_id":   row.ID,
		"task_type": row.Type,
	}).Info("created task")
	return nil
}
