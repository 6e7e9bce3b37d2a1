package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/sirupsen/logrus"

	"github.com/omni/gmp-mock-api/chainclient"
	"github.com/omni/gmp-mock-api/config"
	"github.com/omni/gmp-mock-api/entity"
	"github.com/omni/gmp-mock-api/gmp"
	"github.com/omni/gmp-mock-api/logging"
	"github.com/omni/gmp-mock-api/queue"
	"github.com/omni/gmp-mock-api/repository"
)

const (
	KindVerifyMessages = "verify_messages"
	KindConstructProof = "construct_proof"

	EventPollStarted             = "wasm-messages_poll_started"
	EventProofUnderConstruction  = "wasm-proof_under_construction"
	AttributePollID              = "poll_id"
	AttributeContractAddress     = "_contract_address"
	AttributeMultisigSessionID   = "multisig_session_id"
	correlationHeaderBroadcastID = "broadcast_id"
)

var ErrInvalidPayload = errors.New("invalid request payload")

// Dispatcher submits broadcasts to the chain one at a time per signing account and
// publishes the follow-up work of successful ones.
type Dispatcher struct {
	logger logging.Logger
	cfg    *config.RelayConfig
	repo   *repository.Repo
	client chainclient.Client
	queue  queue.Queue
	locks  *KeyedMutex
	wg     sync.WaitGroup
}

func NewDispatcher(logger logging.Logger, cfg *config.RelayConfig, repo *repository.Repo, client chainclient.Client, q queue.Queue) *Dispatcher {
	return &Dispatcher{
		logger: logger,
		cfg:    cfg,
		repo:   repo,
		client: client,
		queue:  q,
		locks:  NewKeyedMutex(),
	}
}

// Dispatch stores the broadcast as RECEIVED and completes it in the background.
func (d *Dispatcher) Dispatch(ctx context.Context, contractAddress string, payload json.RawMessage) (*entity.Broadcast, error) {
	if !json.Valid(payload) {
		return nil, fmt.Errorf("payload is not a valid json: %w", ErrInvalidPayload)
	}
	broadcast := &entity.Broadcast{
		ID:              uuid.NewString(),
		ContractAddress: contractAddress,
		RequestPayload:  types.JSONText(payload),
		Status:          gmp.BroadcastStatusReceived,
	}
	if err := d.repo.Broadcasts.Insert(ctx, broadcast); err != nil {
		return nil, fmt.Errorf("can't store broadcast: %w", err)
	}

	received := *broadcast
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.complete(context.WithoutCancel(ctx), &received)
	}()
	return broadcast, nil
}

// Wait blocks until every dispatched broadcast is completed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) complete(ctx context.Context, broadcast *entity.Broadcast) {
	kind := PayloadKind(broadcast.RequestPayload)
	logger := d.logger.WithFields(logrus.Fields{
		"broadcast_id":     broadcast.ID,
		"contract_address": broadcast.ContractAddress,
		"kind":             kind,
	})
	defer func(start time.Time) {
		BroadcastDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}(time.Now())

	// the chain rejects concurrent txs of one account because of the sequence number
	unlock := d.locks.Lock(d.cfg.SigningAccount)
	defer unlock()

	logger.Info("submitting broadcast")
	res, err := d.client.SubmitTx(ctx, d.cfg.SigningAccount, broadcast.ContractAddress, json.RawMessage(broadcast.RequestPayload))
	if err != nil || res.Code != 0 {
		msg := FailureMessage(res, err)
		logger.WithField("error", msg).Warn("broadcast failed")
		d.finish(ctx, logger, broadcast, kind, gmp.BroadcastStatusFailed, nil, &msg)
		return
	}

	logger = logger.WithField("tx_hash", res.TxHash)
	if !d.finish(ctx, logger, broadcast, kind, gmp.BroadcastStatusSuccess, &res.TxHash, nil) {
		return
	}
	if err = d.publishFollowUp(ctx, logger, broadcast, kind, res); err != nil {
		logger.WithError(err).Error("can't publish follow-up item")
	}
}

func (d *Dispatcher) finish(ctx context.Context, logger logging.Logger, broadcast *entity.Broadcast, kind string, status gmp.BroadcastStatus, txHash, errMsg *string) bool {
	ok, err := d.repo.Broadcasts.Complete(ctx, broadcast.ID, status, txHash, errMsg)
	if err != nil {
		logger.WithError(err).Error("can't complete broadcast")
		return false
	}
	if !ok {
		logger.Warn("broadcast is already completed")
		return false
	}
	BroadcastResults.WithLabelValues(kind, string(status)).Inc()
	logger.WithField("status", status).Info("broadcast completed")
	return true
}

func (d *Dispatcher) publishFollowUp(ctx context.Context, logger logging.Logger, broadcast *entity.Broadcast, kind string, res *chainclient.TxResponse) error {
	var item gmp.QueueItem
	switch kind {
	case KindVerifyMessages:
		event, ok := res.FindEvent(EventPollStarted)
		if !ok {
			return fmt.Errorf("%s event is not found in tx %s", EventPollStarted, res.TxHash)
		}
		pollID, ok := event.Attribute(AttributePollID)
		if !ok {
			return fmt.Errorf("%s attribute is not found in %s event", AttributePollID, EventPollStarted)
		}
		contractAddress, ok := event.Attribute(AttributeContractAddress)
		if !ok {
			return fmt.Errorf("%s attribute is not found in %s event", AttributeContractAddress, EventPollStarted)
		}
		item = &gmp.VerifyMessagesItem{
			PollID:             pollID,
			ContractAddress:    contractAddress,
			Chain:              d.cfg.Chain,
			BroadcastCreatedAt: broadcast.CreatedAt,
		}
	case KindConstructProof:
		if d.cfg.MultisigAddress == "" {
			logger.Info("proof construction started, multisig address is not configured, skipping follow-up")
			return nil
		}
		event, ok := res.FindEvent(EventProofUnderConstruction)
		if !ok {
			return fmt.Errorf("%s event is not found in tx %s", EventProofUnderConstruction, res.TxHash)
		}
		sessionID, ok := event.Attribute(AttributeMultisigSessionID)
		if !ok {
			return fmt.Errorf("%s attribute is not found in %s event", AttributeMultisigSessionID, EventProofUnderConstruction)
		}
		item = &gmp.ConstructProofItem{
			SessionID:          sessionID,
			ContractAddress:    d.cfg.MultisigAddress,
			ProverAddress:      broadcast.ContractAddress,
			Chain:              d.cfg.Chain,
			BroadcastCreatedAt: broadcast.CreatedAt,
		}
	default:
		return nil
	}

	props := &queue.Properties{
		CorrelationID: broadcast.ID,
		Headers:       map[string]string{correlationHeaderBroadcastID: broadcast.ID},
		Persistent:    true,
	}
	if err := d.queue.Publish(ctx, item, props); err != nil {
		return err
	}
	logger.WithField("item_kind", item.Kind()).Info("published follow-up item")
	return nil
}

// Query runs a smart query against the contract. The contract's data is returned as is,
// output that is not a json object is returned as a json string.
func (d *Dispatcher) Query(ctx context.Context, contractAddress string, query json.RawMessage) (json.RawMessage, error) {
	if !json.Valid(query) {
		return nil, fmt.Errorf("query is not a valid json: %w", ErrInvalidPayload)
	}
	out, err := d.client.QueryContractState(ctx, contractAddress, query)
	if err != nil {
		return nil, fmt.Errorf("can't query contract state: %w", err)
	}
	var res struct {
		Data json.RawMessage `json:"data"`
	}
	if err = json.Unmarshal(out, &res); err == nil && len(res.Data) > 0 {
		return res.Data, nil
	}
	raw, err := json.Marshal(strings.TrimSpace(string(out)))
	if err != nil {
		return nil, fmt.Errorf("can't encode query output: %w", err)
	}
	return raw, nil
}

// PayloadKind returns the single top level key of an execute message, e.g. verify_messages.
func PayloadKind(payload []byte) string {
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(payload, &msg); err != nil || len(msg) != 1 {
		return "unknown"
	}
	for kind := range msg {
		return kind
	}
	return "unknown"
}

// FailureMessage prefers the chain raw log, then the CLI stderr, then the error itself.
func FailureMessage(res *chainclient.TxResponse, err error) string {
	if res != nil && res.RawLog != "" {
		return res.RawLog
	}
	var cmdErr *chainclient.CommandError
	if errors.As(err, &cmdErr) && strings.TrimSpace(cmdErr.Stderr) != "" {
		return strings.TrimSpace(cmdErr.Stderr)
	}
	if err != nil {
		return err.Error()
	}
	if res != nil {
		return fmt.Sprintf("tx %s failed with code %d", res.TxHash, res.Code)
	}
	return "unknown failure"
}
