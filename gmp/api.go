package gmp

import (
	"encoding/json"
	"time"
)

const (
	EventStatusAccepted = "ACCEPTED"
	EventStatusError    = "ERROR"
)

type BroadcastStatus string

const (
	BroadcastStatusReceived BroadcastStatus = "RECEIVED"
	BroadcastStatusSuccess  BroadcastStatus = "SUCCESS"
	BroadcastStatusFailed   BroadcastStatus = "FAILED"
)

func (s BroadcastStatus) IsTerminal() bool {
	return s == BroadcastStatusSuccess || s == BroadcastStatusFailed
}

type PostEventsRequest struct {
	Events []json.RawMessage `json:"events"`
}

type PostEventResult struct {
	Status    string  `json:"status"`
	Index     int     `json:"index"`
	Error     *string `json:"error,omitempty"`
	Retriable *bool   `json:"retriable,omitempty"`
}

type PostEventResponse struct {
	Results []PostEventResult `json:"results"`
}

type PostTaskResponse struct {
	ID string `json:"id"`
}

type TasksResponse struct {
	Tasks []json.RawMessage `json:"tasks"`
}

type BroadcastResponse struct {
	BroadcastID string          `json:"broadcastID"`
	Status      BroadcastStatus `json:"status"`
}

type BroadcastStatusResponse struct {
	BroadcastID string          `json:"broadcastID"`
	Status      BroadcastStatus `json:"status"`
	TxHash      string          `json:"txHash,omitempty"`
	Error       string          `json:"error,omitempty"`
	ReceivedAt  time.Time       `json:"receivedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}
