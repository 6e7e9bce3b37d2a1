package gmp

import (
	"encoding/json"
	"fmt"
	"time"
)

type TaskType string

const (
	TaskTypeVerify                       TaskType = "VERIFY"
	TaskTypeExecute                      TaskType = "EXECUTE"
	TaskTypeGatewayTx                    TaskType = "GATEWAY_TX"
	TaskTypeConstructProof               TaskType = "CONSTRUCT_PROOF"
	TaskTypeReactToWasmEvent             TaskType = "REACT_TO_WASM_EVENT"
	TaskTypeRefund                       TaskType = "REFUND"
	TaskTypeReactToExpiredSigningSession TaskType = "REACT_TO_EXPIRED_SIGNING_SESSION"
	TaskTypeReactToRetriablePoll         TaskType = "REACT_TO_RETRIABLE_POLL"
	TaskTypeUnknown                      TaskType = "UNKNOWN"
)

type GatewayV2Message struct {
	MessageID          string `json:"messageID"`
	SourceChain        string `json:"sourceChain"`
	SourceAddress      string `json:"sourceAddress"`
	DestinationAddress string `json:"destinationAddress"`
	PayloadHash        string `json:"payloadHash"`
}

type Amount struct {
	TokenID *string `json:"tokenID"`
	Amount  string  `json:"amount"`
}

type ScopedMessage struct {
	MessageID   string `json:"messageID"`
	SourceChain string `json:"sourceChain"`
}

type TaskMetadata struct {
	TxID           *string           `json:"txID"`
	FromAddress    *string           `json:"fromAddress"`
	Finalized      *bool             `json:"finalized"`
	SourceContext  map[string]string `json:"sourceContext"`
	ScopedMessages []ScopedMessage   `json:"scopedMessages"`
}

// TaskHeader holds the fields shared by every task kind.
type TaskHeader struct {
	ID        string        `json:"id"`
	Chain     string        `json:"chain"`
	Timestamp string        `json:"timestamp"`
	Type      TaskType      `json:"type"`
	Meta      *TaskMetadata `json:"meta"`
}

func (h *TaskHeader) Header() *TaskHeader {
	return h
}

func (h *TaskHeader) Time() (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, h.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("can't parse task timestamp %q: %w", h.Timestamp, err)
	}
	return ts, nil
}

func (h *TaskHeader) validate() error {
	if h.ID == "" {
		return fmt.Errorf("task id is empty: %w", ErrInvalidTask)
	}
	if h.Chain == "" {
		return fmt.Errorf("task chain is empty: %w", ErrInvalidTask)
	}
	if _, err := h.Time(); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), ErrInvalidTask)
	}
	return nil
}

// Task is implemented by every task kind, each of them embeds TaskHeader.
type Task interface {
	Header() *TaskHeader
}

type VerifyTaskFields struct {
	Message GatewayV2Message `json:"message"`
	Payload string           `json:"payload"`
}

type VerifyTask struct {
	TaskHeader
	Task VerifyTaskFields `json:"task"`
}

type ExecuteTaskFields struct {
	Message             GatewayV2Message `json:"message"`
	Payload             string           `json:"payload"`
	AvailableGasBalance Amount           `json:"availableGasBalance"`
}

type ExecuteTask struct {
	TaskHeader
	Task ExecuteTaskFields `json:"task"`
}

type GatewayTxTaskFields struct {
	ExecuteData string `json:"executeData"`
}

type GatewayTxTask struct {
	TaskHeader
	Task GatewayTxTaskFields `json:"task"`
}

type ConstructProofTaskFields struct {
	Message GatewayV2Message `json:"message"`
	Payload string           `json:"payload"`
}

type ConstructProofTask struct {
	TaskHeader
	Task ConstructProofTaskFields `json:"task"`
}

type EventAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type WasmEvent struct {
	Type       string           `json:"type"`
	Attributes []EventAttribute `json:"attributes"`
}

type ReactToWasmEventTaskFields struct {
	Event  WasmEvent `json:"event"`
	Height uint64    `json:"height"`
}

type ReactToWasmEventTask struct {
	TaskHeader
	Task ReactToWasmEventTaskFields `json:"task"`
}

type RefundTaskFields struct {
	Message                GatewayV2Message `json:"message"`
	RefundRecipientAddress string           `json:"refundRecipientAddress"`
	RemainingGasBalance    Amount           `json:"remainingGasBalance"`
}

type RefundTask struct {
	TaskHeader
	Task RefundTaskFields `json:"task"`
}

type ReactToExpiredSigningSessionTaskFields struct {
	SessionID              uint64 `json:"sessionID"`
	BroadcastID            string `json:"broadcastID"`
	InvokedContractAddress string `json:"invokedContractAddress"`
	RequestPayload         string `json:"requestPayload"`
}

type ReactToExpiredSigningSessionTask struct {
	TaskHeader
	Task ReactToExpiredSigningSessionTaskFields `json:"task"`
}

type QuorumReachedEvent struct {
	Status  VerificationStatus `json:"status"`
	Content json.RawMessage    `json:"content"`
}

type ReactToRetriablePollTaskFields struct {
	PollID                 uint64               `json:"pollID"`
	BroadcastID            string               `json:"broadcastID"`
	InvokedContractAddress string               `json:"invokedContractAddress"`
	RequestPayload         string               `json:"requestPayload"`
	QuorumReachedEvents    []QuorumReachedEvent `json:"quorumReachedEvents"`
}

type ReactToRetriablePollTask struct {
	TaskHeader
	Task ReactToRetriablePollTaskFields `json:"task"`
}

// UnknownTask keeps the header of a task whose type is not recognized, together with its raw body.
type UnknownTask struct {
	TaskHeader
	Task json.RawMessage `json:"task,omitempty"`
}

type VerificationStatus string

const (
	VerificationStatusSucceededOnSourceChain   VerificationStatus = "succeeded_on_source_chain"
	VerificationStatusFailedOnSourceChain      VerificationStatus = "failed_on_source_chain"
	VerificationStatusFailedOnDestinationChain VerificationStatus = "failed_on_destination_chain"
	VerificationStatusNotFoundOnSourceChain    VerificationStatus = "not_found_on_source_chain"
	VerificationStatusFailedToVerify           VerificationStatus = "failed_to_verify"
	VerificationStatusInProgress               VerificationStatus = "in_progress"
	VerificationStatusUnknown                  VerificationStatus = "unknown"
)

func newTask(typ TaskType) Task {
	switch typ {
	case TaskTypeVerify:
		return new(VerifyTask)
	case TaskTypeExecute:
		return new(ExecuteTask)
	case TaskTypeGatewayTx:
		return new(GatewayTxTask)
	case TaskTypeConstructProof:
		return new(ConstructProofTask)
	case TaskTypeReactToWasmEvent:
		return new(ReactToWasmEventTask)
	case TaskTypeRefund:
		return new(RefundTask)
	case TaskTypeReactToExpiredSigningSession:
		return new(ReactToExpiredSigningSessionTask)
	case TaskTypeReactToRetriablePoll:
		return new(ReactToRetriablePollTask)
	default:
		return new(UnknownTask)
	}
}

// ParseTask decodes a task in two passes: the header first, to find out the
// task kind, and then the whole document into the matching variant.
// Unrecognized kinds are returned as *UnknownTask.
func ParseTask(data []byte) (Task, error) {
	var header TaskHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("can't decode task header: %s: %w", err.Error(), ErrInvalidTask)
	}
	task := newTask(header.Type)
	if err := json.Unmarshal(data, task); err != nil {
		return nil, fmt.Errorf("can't decode %s task: %s: %w", header.Type, err.Error(), ErrInvalidTask)
	}
	if err := task.Header().validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// IsUnknownTask reports whether the task kind was not recognized while decoding.
func IsUnknownTask(task Task) bool {
	_, ok := task.(*UnknownTask)
	return ok
}

// TaskMessageID returns the GMP message id referenced by the task, if the task kind carries one.
func TaskMessageID(task Task) string {
	switch t := task.(type) {
	case *VerifyTask:
		return t.Task.Message.MessageID
	case *ExecuteTask:
		return t.Task.Message.MessageID
	case *ConstructProofTask:
		return t.Task.Message.MessageID
	case *RefundTask:
		return t.Task.Message.MessageID
	default:
		return ""
	}
}
