package gmp

import (
	"encoding/json"
	"fmt"
	"time"
)

type QueueItemKind string

const (
	QueueItemVerifyMessages QueueItemKind = "VerifyMessages"
	QueueItemConstructProof QueueItemKind = "ConstructProof"
)

// QueueItem is a unit of follow-up work, encoded as {"<Kind>": {...}}.
type QueueItem interface {
	Kind() QueueItemKind
	CreatedAt() time.Time
}

type VerifyMessagesItem struct {
	PollID             string    `json:"poll_id"`
	ContractAddress    string    `json:"contract_address"`
	Chain              string    `json:"chain"`
	BroadcastCreatedAt time.Time `json:"broadcast_created_at"`
}

func (i *VerifyMessagesItem) Kind() QueueItemKind  { return QueueItemVerifyMessages }
func (i *VerifyMessagesItem) CreatedAt() time.Time { return i.BroadcastCreatedAt }

type ConstructProofItem struct {
	SessionID          string    `json:"session_id"`
	ContractAddress    string    `json:"contract_address"`
	ProverAddress      string    `json:"prover_address,omitempty"`
	Chain              string    `json:"chain"`
	BroadcastCreatedAt time.Time `json:"broadcast_created_at"`
}

func (i *ConstructProofItem) Kind() QueueItemKind  { return QueueItemConstructProof }
func (i *ConstructProofItem) CreatedAt() time.Time { return i.BroadcastCreatedAt }

func MarshalQueueItem(item QueueItem) ([]byte, error) {
	data, err := json.Marshal(map[QueueItemKind]QueueItem{item.Kind(): item})
	if err != nil {
		return nil, fmt.Errorf("can't encode queue item: %w", err)
	}
	return data, nil
}

// ParseQueueItem reads the single variant key first and then decodes its body.
func ParseQueueItem(data []byte) (QueueItem, error) {
	var envelope map[QueueItemKind]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("can't decode queue item envelope: %s: %w", err.Error(), ErrInvalidQueueItem)
	}
	if len(envelope) != 1 {
		return nil, fmt.Errorf("queue item must have exactly one variant, got %d: %w", len(envelope), ErrInvalidQueueItem)
	}
	for kind, body := range envelope {
		var item QueueItem
		switch kind {
		case QueueItemVerifyMessages:
			item = new(VerifyMessagesItem)
		case QueueItemConstructProof:
			item = new(ConstructProofItem)
		default:
			return nil, fmt.Errorf("unknown queue item kind %q: %w", kind, ErrInvalidQueueItem)
		}
		if err := json.Unmarshal(body, item); err != nil {
			return nil, fmt.Errorf("can't decode %s queue item: %s: %w", kind, err.Error(), ErrInvalidQueueItem)
		}
		return item, nil
	}
	return nil, ErrInvalidQueueItem
}
