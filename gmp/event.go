package gmp

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventTypeCall                   EventType = "CALL"
	EventTypeGasCredit              EventType = "GAS_CREDIT"
	EventTypeGasRefunded            EventType = "GAS_REFUNDED"
	EventTypeMessageExecuted        EventType = "MESSAGE_EXECUTED"
	EventTypeCannotExecuteMessageV2 EventType = "CANNOT_EXECUTE_MESSAGE/V2"
	EventTypeITSInterchainTransfer  EventType = "ITS/INTERCHAIN_TRANSFER"
)

// Complement returns the event type that completes a CALL / GAS_CREDIT pair.
func (t EventType) Complement() (EventType, bool) {
	switch t {
	case EventTypeCall:
		return EventTypeGasCredit, true
	case EventTypeGasCredit:
		return EventTypeCall, true
	default:
		return "", false
	}
}

type MessageExecutionStatus string

const (
	MessageExecutionStatusSuccessful MessageExecutionStatus = "SUCCESSFUL"
	MessageExecutionStatusReverted   MessageExecutionStatus = "REVERTED"
)

type CannotExecuteMessageReason string

const (
	CannotExecuteMessageReasonInsufficientGas CannotExecuteMessageReason = "INSUFFICIENT_GAS"
	CannotExecuteMessageReasonError           CannotExecuteMessageReason = "ERROR"
)

type EventMetadata struct {
	TxID          *string           `json:"txID"`
	FromAddress   *string           `json:"fromAddress"`
	Finalized     *bool             `json:"finalized"`
	SourceContext map[string]string `json:"sourceContext"`
	Timestamp     string            `json:"timestamp"`
}

// TaskMetadata converts event metadata into task metadata, scoped messages are left empty.
func (m *EventMetadata) TaskMetadata() *TaskMetadata {
	if m == nil {
		return nil
	}
	return &TaskMetadata{
		TxID:          m.TxID,
		FromAddress:   m.FromAddress,
		Finalized:     m.Finalized,
		SourceContext: m.SourceContext,
	}
}

type MessageExecutedEventMetadata struct {
	EventMetadata
	CommandID       *string  `json:"commandID"`
	ChildMessageIDs []string `json:"childMessageIDs"`
	RevertReason    *string  `json:"revertReason"`
}

// EventHeader holds the fields shared by every event kind.
type EventHeader struct {
	Type    EventType `json:"type"`
	EventID string    `json:"eventID"`
}

func (h *EventHeader) Header() *EventHeader {
	return h
}

// Event is implemented by every event kind.
type Event interface {
	Header() *EventHeader
	MessageID() string
	Metadata() *EventMetadata
}

type CallEvent struct {
	EventHeader
	Meta             *EventMetadata   `json:"meta"`
	Message          GatewayV2Message `json:"message"`
	DestinationChain string           `json:"destinationChain"`
	Payload          string           `json:"payload"`
}

func (e *CallEvent) MessageID() string        { return e.Message.MessageID }
func (e *CallEvent) Metadata() *EventMetadata { return e.Meta }

type GasCreditEvent struct {
	EventHeader
	Meta          *EventMetadata `json:"meta"`
	MsgID         string         `json:"messageID"`
	RefundAddress string         `json:"refundAddress"`
	Payment       Amount         `json:"payment"`
}

func (e *GasCreditEvent) MessageID() string        { return e.MsgID }
func (e *GasCreditEvent) Metadata() *EventMetadata { return e.Meta }

type GasRefundedEvent struct {
	EventHeader
	Meta             *EventMetadata `json:"meta"`
	MsgID            string         `json:"messageID"`
	RecipientAddress string         `json:"recipientAddress"`
	RefundedAmount   Amount         `json:"refundedAmount"`
	Cost             Amount         `json:"cost"`
}

func (e *GasRefundedEvent) MessageID() string        { return e.MsgID }
func (e *GasRefundedEvent) Metadata() *EventMetadata { return e.Meta }

type MessageExecutedEvent struct {
	EventHeader
	Meta        *MessageExecutedEventMetadata `json:"meta"`
	MsgID       string                        `json:"messageID"`
	SourceChain string                        `json:"sourceChain"`
	Status      MessageExecutionStatus        `json:"status"`
	Cost        Amount                        `json:"cost"`
}

func (e *MessageExecutedEvent) MessageID() string { return e.MsgID }

func (e *MessageExecutedEvent) Metadata() *EventMetadata {
	if e.Meta == nil {
		return nil
	}
	return &e.Meta.EventMetadata
}

type CannotExecuteMessageV2Event struct {
	EventHeader
	Meta        *EventMetadata             `json:"meta"`
	MsgID       string                     `json:"messageID"`
	SourceChain string                     `json:"sourceChain"`
	Reason      CannotExecuteMessageReason `json:"reason"`
	Details     string                     `json:"details"`
}

func (e *CannotExecuteMessageV2Event) MessageID() string        { return e.MsgID }
func (e *CannotExecuteMessageV2Event) Metadata() *EventMetadata { return e.Meta }

type ITSInterchainTransferEvent struct {
	EventHeader
	Meta               *EventMetadata `json:"meta"`
	MsgID              string         `json:"messageID"`
	DestinationChain   string         `json:"destinationChain"`
	TokenSpent         Amount         `json:"tokenSpent"`
	SourceAddress      string         `json:"sourceAddress"`
	DestinationAddress string         `json:"destinationAddress"`
	DataHash           string         `json:"dataHash"`
}

func (e *ITSInterchainTransferEvent) MessageID() string        { return e.MsgID }
func (e *ITSInterchainTransferEvent) Metadata() *EventMetadata { return e.Meta }

func newEvent(typ EventType) (Event, error) {
	switch typ {
	case EventTypeCall:
		return new(CallEvent), nil
	case EventTypeGasCredit:
		return new(GasCreditEvent), nil
	case EventTypeGasRefunded:
		return new(GasRefundedEvent), nil
	case EventTypeMessageExecuted:
		return new(MessageExecutedEvent), nil
	case EventTypeCannotExecuteMessageV2:
		return new(CannotExecuteMessageV2Event), nil
	case EventTypeITSInterchainTransfer:
		return new(ITSInterchainTransferEvent), nil
	default:
		return nil, fmt.Errorf("unknown event type %q: %w", typ, ErrInvalidEvent)
	}
}

// ParseEvent decodes an event in two passes, header first and then the matching variant.
func ParseEvent(data []byte) (Event, error) {
	var header EventHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("can't decode event header: %s: %w", err.Error(), ErrInvalidEvent)
	}
	event, err := newEvent(header.Type)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("can't decode %s event: %s: %w", header.Type, err.Error(), ErrInvalidEvent)
	}
	if event.Header().EventID == "" {
		return nil, fmt.Errorf("event id is empty: %w", ErrInvalidEvent)
	}
	if event.MessageID() == "" {
		return nil, fmt.Errorf("event message id is empty: %w", ErrInvalidEvent)
	}
	return event, nil
}

// EventTime returns the event timestamp from its metadata, falling back to now.
func EventTime(event Event, now time.Time) time.Time {
	meta := event.Metadata()
	if meta == nil || meta.Timestamp == "" {
		return now
	}
	ts, err := time.Parse(time.RFC3339Nano, meta.Timestamp)
	if err != nil {
		return now
	}
	return ts
}
