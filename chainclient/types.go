package chainclient

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type StringEvent struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

// Attribute returns the value of the first attribute with the given key.
func (e *StringEvent) Attribute(key string) (string, bool) {
	for _, attr := range e.Attributes {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

type ABCIMessageLog struct {
	MsgIndex uint32        `json:"msg_index"`
	Log      string        `json:"log"`
	Events   []StringEvent `json:"events"`
}

// TxResponse mirrors the JSON output of a cosmos-sdk transaction, as returned by
// both tx broadcasting and tx history queries.
type TxResponse struct {
	Height    string           `json:"height"`
	TxHash    string           `json:"txhash"`
	Code      uint32           `json:"code"`
	Codespace string           `json:"codespace,omitempty"`
	RawLog    string           `json:"raw_log"`
	Logs      []ABCIMessageLog `json:"logs"`
	Events    []StringEvent    `json:"events"`
	Timestamp string           `json:"timestamp"`
}

// AllEvents returns the events of every message log followed by the top level tx events.
func (r *TxResponse) AllEvents() []StringEvent {
	events := make([]StringEvent, 0, len(r.Events))
	for _, log := range r.Logs {
		events = append(events, log.Events...)
	}
	return append(events, r.Events...)
}

// FindEvent returns the first event of the given type.
func (r *TxResponse) FindEvent(eventType string) (*StringEvent, bool) {
	for _, event := range r.AllEvents() {
		if event.Type == eventType {
			event := event
			return &event, true
		}
	}
	return nil, false
}

// BlockHeight parses the tx height, 0 is returned for missing or malformed values.
func (r *TxResponse) BlockHeight() uint64 {
	height, err := strconv.ParseUint(r.Height, 10, 64)
	if err != nil {
		return 0
	}
	return height
}

// Time parses the tx timestamp, ok is false when the timestamp is missing or malformed.
func (r *TxResponse) Time() (time.Time, bool) {
	if r.Timestamp == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Count accepts both JSON numbers and numeric strings.
type Count uint64

func (c *Count) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*c = Count(v)
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("can't parse count %q: %w", v, err)
		}
		*c = Count(n)
	case nil:
		return ErrNoTotalCount
	default:
		return fmt.Errorf("unexpected count value %s", string(data))
	}
	return nil
}

type SearchTxsResult struct {
	TotalCount Count        `json:"total_count"`
	Txs        []TxResponse `json:"txs"`
}
